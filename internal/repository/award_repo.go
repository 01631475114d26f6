package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yuqie6/SkillLedger/internal/schema"
)

// AwardRepository 经验发放幂等记录
type AwardRepository struct {
	db *gorm.DB
}

func NewAwardRepository(db *gorm.DB) *AwardRepository {
	return &AwardRepository{db: db}
}

// TryRecord 插入幂等键；返回 false 表示该键已存在（重复请求）
func (r *AwardRepository) TryRecord(ctx context.Context, ev *schema.AwardEvent) (bool, error) {
	if ev == nil || ev.IdempotencyKey == "" {
		return false, fmt.Errorf("幂等键不能为空")
	}
	res := conn(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(ev)
	if res.Error != nil {
		return false, fmt.Errorf("写入发放记录失败: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Get 按幂等键查询发放记录，不存在时返回 nil
func (r *AwardRepository) Get(ctx context.Context, key string) (*schema.AwardEvent, error) {
	var ev schema.AwardEvent
	err := conn(ctx, r.db).Where("idempotency_key = ?", key).First(&ev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询发放记录失败: %w", err)
	}
	return &ev, nil
}

// DeleteBefore 删除保留期之前的发放记录
func (r *AwardRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := conn(ctx, r.db).Where("created_at < ?", cutoff).Delete(&schema.AwardEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("清理发放记录失败: %w", res.Error)
	}
	return res.RowsAffected, nil
}
