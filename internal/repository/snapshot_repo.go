package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yuqie6/SkillLedger/internal/progression"
	"github.com/yuqie6/SkillLedger/internal/schema"
)

// SnapshotRepository 实体快照仓储
// 技能等级只能经由冲突合并的 upsert 写入，不做应用层读改写
type SnapshotRepository struct {
	db      *gorm.DB
	weights progression.CombatWeights
}

func NewSnapshotRepository(db *gorm.DB, weights progression.CombatWeights) *SnapshotRepository {
	return &SnapshotRepository{db: db, weights: weights.Normalize()}
}

// Get 查询快照，不存在时返回 nil
func (r *SnapshotRepository) Get(ctx context.Context, entityID string) (*schema.EntitySnapshot, error) {
	var snap schema.EntitySnapshot
	err := conn(ctx, r.db).Where("entity_id = ?", entityID).First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询快照失败: %w", err)
	}
	return &snap, nil
}

// mergeAssignments 冲突时逐列合并：等级取最大，标量优先取新值
func mergeAssignments() clause.Set {
	set := map[string]any{
		"name":                gorm.Expr("COALESCE(NULLIF(excluded.name, ''), entity_snapshots.name)"),
		"external_record_uri": gorm.Expr("COALESCE(excluded.external_record_uri, entity_snapshots.external_record_uri)"),
		"external_tx_ref":     gorm.Expr("COALESCE(excluded.external_tx_ref, entity_snapshots.external_tx_ref)"),
		"revision":            gorm.Expr("MAX(entity_snapshots.revision + 1, excluded.revision)"),
		"updated_at":          gorm.Expr("excluded.updated_at"),
	}
	for _, s := range progression.AllSkills() {
		col := schema.LevelColumn(s)
		set[col] = gorm.Expr(fmt.Sprintf("MAX(entity_snapshots.%s, excluded.%s)", col, col))
	}
	return clause.Assignments(set)
}

// MergeUpsert 以逐技能取最大值的方式合并快照，并在同一事务内重新计算汇总字段
func (r *SnapshotRepository) MergeUpsert(ctx context.Context, in *schema.EntitySnapshot) (*schema.EntitySnapshot, error) {
	if in == nil || in.EntityID == "" {
		return nil, fmt.Errorf("实体 ID 不能为空")
	}

	row := schema.EntitySnapshot{
		EntityID:          in.EntityID,
		Name:              in.Name,
		ExternalRecordURI: in.ExternalRecordURI,
		ExternalTxRef:     in.ExternalTxRef,
		Revision:          max(in.Revision, 1),
		UpdatedAt:         time.Now(),
	}
	row.SetLevels(in.Levels())
	agg := progression.Project(row.Levels(), r.weights)
	row.TotalLevel = agg.TotalLevel
	row.CombatLevel = agg.CombatLevel

	var out schema.EntitySnapshot
	err := inTx(ctx, r.db, func(ctx context.Context, tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_id"}},
			DoUpdates: mergeAssignments(),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("合并快照失败: %w", err)
		}

		// 仍持有该行写锁：汇总字段从已存储的等级重新计算
		if err := tx.Where("entity_id = ?", in.EntityID).First(&out).Error; err != nil {
			return fmt.Errorf("读取合并结果失败: %w", err)
		}
		agg := progression.Project(out.Levels(), r.weights)
		if agg.TotalLevel == out.TotalLevel && agg.CombatLevel == out.CombatLevel {
			return nil
		}
		err = tx.Model(&schema.EntitySnapshot{}).
			Where("entity_id = ?", in.EntityID).
			UpdateColumns(map[string]any{
				"total_level":  agg.TotalLevel,
				"combat_level": agg.CombatLevel,
			}).Error
		if err != nil {
			return fmt.Errorf("更新汇总等级失败: %w", err)
		}
		out.TotalLevel = agg.TotalLevel
		out.CombatLevel = agg.CombatLevel
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// EnsureCreated 创建初始快照（全部 1 级）；已存在时只补全空名称
func (r *SnapshotRepository) EnsureCreated(ctx context.Context, entityID, name string) (*schema.EntitySnapshot, error) {
	if entityID == "" {
		return nil, fmt.Errorf("实体 ID 不能为空")
	}
	row := schema.EntitySnapshot{EntityID: entityID, Name: name, Revision: 1}
	row.SetLevels(progression.Levels{})
	agg := progression.Project(row.Levels(), r.weights)
	row.TotalLevel = agg.TotalLevel
	row.CombatLevel = agg.CombatLevel

	err := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "entity_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"name": gorm.Expr("COALESCE(NULLIF(entity_snapshots.name, ''), excluded.name)"),
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("创建快照失败: %w", err)
	}
	return r.Get(ctx, entityID)
}

// List 分页列出快照
func (r *SnapshotRepository) List(ctx context.Context, limit, offset int) ([]schema.EntitySnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []schema.EntitySnapshot
	err := conn(ctx, r.db).Order("entity_id ASC").Limit(limit).Offset(offset).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询快照列表失败: %w", err)
	}
	return rows, nil
}
