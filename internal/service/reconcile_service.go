package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yuqie6/SkillLedger/internal/pkg/apperr"
	"github.com/yuqie6/SkillLedger/internal/pkg/logger"
	"github.com/yuqie6/SkillLedger/internal/progression"
)

// ReconcileService 数据库快照与链上快照的逐技能取最大合并
type ReconcileService struct {
	snapshots SnapshotRepository
	weights   progression.CombatWeights
	table     *progression.Table
}

func NewReconcileService(snapshots SnapshotRepository, weights progression.CombatWeights, table *progression.Table) *ReconcileService {
	if table == nil {
		table = progression.DefaultTable
	}
	return &ReconcileService{snapshots: snapshots, weights: weights.Normalize(), table: table}
}

// checkLevels 外部快照的等级必须在 [1, MaxLevel] 内；0 表示该来源未知
func (s *ReconcileService) checkLevels(in *Snapshot) error {
	if in == nil {
		return nil
	}
	maxLevel := s.table.MaxLevel()
	for _, sk := range progression.AllSkills() {
		lvl := in.Levels[sk]
		if lvl < 0 || lvl > maxLevel {
			return apperr.Validation("技能 %s 等级 %d 超出范围 [1, %d]", sk.Key(), lvl, maxLevel)
		}
	}
	return nil
}

// ReconcileSnapshot 把 incoming 合并进已存储的快照，返回合并后的存储结果
// 合并在存储层的冲突子句中完成，并发合并收敛到逐技能最大值
func (s *ReconcileService) ReconcileSnapshot(ctx context.Context, entityID string, incoming *Snapshot) (*Snapshot, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, apperr.Validation("实体 ID 不能为空")
	}
	in := Snapshot{}
	if incoming != nil {
		in = *incoming
	}
	if in.EntityID != "" && in.EntityID != entityID {
		return nil, apperr.Validation("快照实体 %s 与目标实体 %s 不一致", in.EntityID, entityID)
	}
	if err := s.checkLevels(&in); err != nil {
		return nil, err
	}
	in.EntityID = entityID

	stored, err := s.snapshots.MergeUpsert(ctx, in.Record())
	if err != nil {
		return nil, apperr.Storage("合并快照失败", err)
	}
	out := SnapshotFromRecord(stored)
	logger.WithFields(logrus.Fields{
		"entity_id":    entityID,
		"revision":     out.Revision,
		"total_level":  out.TotalLevel,
		"combat_level": out.CombatLevel,
	}).Debug("快照已合并")
	return out, nil
}

// Preview 计算合并结果但不写库
func (s *ReconcileService) Preview(ctx context.Context, entityID string, incoming *Snapshot) (*Snapshot, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, apperr.Validation("实体 ID 不能为空")
	}
	if err := s.checkLevels(incoming); err != nil {
		return nil, err
	}
	rec, err := s.snapshots.Get(ctx, entityID)
	if err != nil {
		return nil, apperr.Storage("查询快照失败", err)
	}
	existing := SnapshotFromRecord(rec)
	if existing == nil {
		existing = &Snapshot{EntityID: entityID}
	}
	out := MergeMax(existing, incoming, s.weights)
	out.EntityID = entityID
	return out, nil
}

// CreateEntity 角色创建时写入初始快照（全部 1 级），重复调用不改变已有等级
func (s *ReconcileService) CreateEntity(ctx context.Context, entityID, name string) (*Snapshot, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, apperr.Validation("实体 ID 不能为空")
	}
	rec, err := s.snapshots.EnsureCreated(ctx, entityID, strings.TrimSpace(name))
	if err != nil {
		return nil, apperr.Storage("创建实体快照失败", err)
	}
	return SnapshotFromRecord(rec), nil
}

// GetSnapshot 查询已存储的快照
func (s *ReconcileService) GetSnapshot(ctx context.Context, entityID string) (*Snapshot, error) {
	entityID = strings.TrimSpace(entityID)
	rec, err := s.snapshots.Get(ctx, entityID)
	if err != nil {
		return nil, apperr.Storage("查询快照失败", err)
	}
	if rec == nil {
		return nil, apperr.NotFound("实体 %s 没有快照", entityID)
	}
	return SnapshotFromRecord(rec), nil
}
