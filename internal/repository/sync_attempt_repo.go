package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yuqie6/SkillLedger/internal/schema"
)

// SyncAttemptRepository 同步尝试记录
type SyncAttemptRepository struct {
	db *gorm.DB
}

func NewSyncAttemptRepository(db *gorm.DB) *SyncAttemptRepository {
	return &SyncAttemptRepository{db: db}
}

func (r *SyncAttemptRepository) Create(ctx context.Context, a *schema.SyncAttempt) error {
	if err := conn(ctx, r.db).Create(a).Error; err != nil {
		return fmt.Errorf("写入同步记录失败: %w", err)
	}
	return nil
}

// Finish 写入结束状态
func (r *SyncAttemptRepository) Finish(ctx context.Context, a *schema.SyncAttempt) error {
	now := time.Now()
	a.FinishedAt = &now
	err := conn(ctx, r.db).Model(&schema.SyncAttempt{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{
			"status":      a.Status,
			"stage":       a.Stage,
			"uri":         a.URI,
			"signature":   a.Signature,
			"error":       a.Error,
			"finished_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("更新同步记录失败: %w", err)
	}
	return nil
}

// ListByEntity 按开始时间倒序
func (r *SyncAttemptRepository) ListByEntity(ctx context.Context, entityID string, limit int) ([]schema.SyncAttempt, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []schema.SyncAttempt
	err := conn(ctx, r.db).
		Where("entity_id = ?", entityID).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询同步记录失败: %w", err)
	}
	return rows, nil
}
