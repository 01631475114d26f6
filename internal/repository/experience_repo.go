package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yuqie6/SkillLedger/internal/schema"
)

// IncrementResult 原子累加后的经验，以及本次累加前已存储的等级
type IncrementResult struct {
	Experience    int64
	PreviousLevel int
}

// ExperienceRepository 技能经验仓储
type ExperienceRepository struct {
	db *gorm.DB
}

func NewExperienceRepository(db *gorm.DB) *ExperienceRepository {
	return &ExperienceRepository{db: db}
}

// 单条语句完成“不存在则创建、存在则累加”，并发累加不会丢失
const incrementSQL = `
INSERT INTO skill_experiences (entity_id, skill, experience, level, pending_external_sync, created_at, updated_at)
VALUES (?, ?, ?, 1, false, ?, ?)
ON CONFLICT(entity_id, skill) DO UPDATE SET
	experience = skill_experiences.experience + excluded.experience,
	updated_at = excluded.updated_at
RETURNING experience, level`

// Increment 原子累加经验
func (r *ExperienceRepository) Increment(ctx context.Context, entityID, skill string, gain int64) (IncrementResult, error) {
	var out IncrementResult
	if gain <= 0 {
		return out, fmt.Errorf("经验增量必须为正数: %d", gain)
	}
	now := time.Now()
	var row struct {
		Experience int64
		Level      int
	}
	res := conn(ctx, r.db).Raw(incrementSQL, entityID, skill, gain, now, now).Scan(&row)
	if res.Error != nil {
		return out, fmt.Errorf("累加经验失败: %w", res.Error)
	}
	out.Experience = row.Experience
	out.PreviousLevel = row.Level
	return out, nil
}

// RaiseLevel 把等级抬到 level（只升不降），必要时标记待同步
func (r *ExperienceRepository) RaiseLevel(ctx context.Context, entityID, skill string, level int, markPending bool) error {
	updates := map[string]any{
		"level":      gorm.Expr("MAX(level, ?)", level),
		"updated_at": time.Now(),
	}
	if markPending {
		updates["pending_external_sync"] = true
	}
	err := conn(ctx, r.db).Model(&schema.SkillExperience{}).
		Where("entity_id = ? AND skill = ?", entityID, skill).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("更新等级失败: %w", err)
	}
	return nil
}

// Get 查询单个技能经验，不存在时返回 nil
func (r *ExperienceRepository) Get(ctx context.Context, entityID, skill string) (*schema.SkillExperience, error) {
	var row schema.SkillExperience
	err := conn(ctx, r.db).Where("entity_id = ? AND skill = ?", entityID, skill).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询技能经验失败: %w", err)
	}
	return &row, nil
}

// ListByEntity 实体的全部技能经验
func (r *ExperienceRepository) ListByEntity(ctx context.Context, entityID string) ([]schema.SkillExperience, error) {
	var rows []schema.SkillExperience
	err := conn(ctx, r.db).Where("entity_id = ?", entityID).Order("skill ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询实体技能失败: %w", err)
	}
	return rows, nil
}

// ListPendingEntities 有待同步技能的实体（工作队列）
func (r *ExperienceRepository) ListPendingEntities(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	var ids []string
	err := conn(ctx, r.db).Model(&schema.SkillExperience{}).
		Where("pending_external_sync = ?", true).
		Distinct("entity_id").
		Order("entity_id ASC").
		Limit(limit).
		Pluck("entity_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("查询待同步实体失败: %w", err)
	}
	return ids, nil
}

// ClearPending 清除待同步标记；只清除等级不高于已发布等级的行
func (r *ExperienceRepository) ClearPending(ctx context.Context, entityID, skill string, publishedLevel int) (int64, error) {
	res := conn(ctx, r.db).Model(&schema.SkillExperience{}).
		Where("entity_id = ? AND skill = ? AND pending_external_sync = ? AND level <= ?", entityID, skill, true, publishedLevel).
		Updates(map[string]any{
			"pending_external_sync": false,
			"updated_at":            time.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("清除同步标记失败: %w", res.Error)
	}
	return res.RowsAffected, nil
}
