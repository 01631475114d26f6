package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yuqie6/SkillLedger/internal/eventbus"
	"github.com/yuqie6/SkillLedger/internal/pkg/apperr"
	"github.com/yuqie6/SkillLedger/internal/pkg/logger"
	"github.com/yuqie6/SkillLedger/internal/progression"
	"github.com/yuqie6/SkillLedger/internal/schema"
)

// DefaultMaxGainPerCall 单次发放经验的上限
const DefaultMaxGainPerCall int64 = 10000

var errKeyReused = errors.New("幂等键载荷不一致")

// LedgerOptions 账本参数
type LedgerOptions struct {
	Table          *progression.Table
	MaxGainPerCall int64
	AwardRetention time.Duration
}

// AwardResult 一次经验发放的结果
type AwardResult struct {
	EntityID      string               `json:"entity_id"`
	Skill         progression.Skill    `json:"skill"`
	Experience    int64                `json:"experience"`
	Level         int                  `json:"level"`
	PreviousLevel int                  `json:"previous_level"`
	LeveledUp     bool                 `json:"leveled_up"`
	Progress      progression.Progress `json:"progress"`
	Duplicate     bool                 `json:"duplicate,omitempty"`
	Truncated     bool                 `json:"truncated,omitempty"`
	RequestedGain int64                `json:"requested_gain"`
	AppliedGain   int64                `json:"applied_gain"`
}

// SkillState 单个技能的当前状态
type SkillState struct {
	Skill               progression.Skill    `json:"skill"`
	Experience          int64                `json:"experience"`
	Level               int                  `json:"level"`
	PendingExternalSync bool                 `json:"pending_external_sync"`
	Progress            progression.Progress `json:"progress"`
}

// LedgerService 技能经验账本
type LedgerService struct {
	tx        TxManager
	exp       ExperienceRepository
	awards    AwardRepository
	snapshots SnapshotRepository
	publisher EventPublisher
	table     *progression.Table
	maxGain   int64
	retention time.Duration
}

func NewLedgerService(tx TxManager, exp ExperienceRepository, awards AwardRepository, snapshots SnapshotRepository, publisher EventPublisher, opts LedgerOptions) *LedgerService {
	if opts.Table == nil {
		opts.Table = progression.DefaultTable
	}
	if opts.MaxGainPerCall <= 0 {
		opts.MaxGainPerCall = DefaultMaxGainPerCall
	}
	if opts.AwardRetention <= 0 {
		opts.AwardRetention = 30 * 24 * time.Hour
	}
	return &LedgerService{
		tx:        tx,
		exp:       exp,
		awards:    awards,
		snapshots: snapshots,
		publisher: publisher,
		table:     opts.Table,
		maxGain:   opts.MaxGainPerCall,
		retention: opts.AwardRetention,
	}
}

// Table 当前使用的等级表
func (s *LedgerService) Table() *progression.Table {
	return s.table
}

// AddExperience 为实体的某个技能发放经验
// 幂等键重复时不报错，返回当前状态且 Duplicate=true
func (s *LedgerService) AddExperience(ctx context.Context, entityID, skillName string, gain int64, idempotencyKey string) (*AwardResult, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, apperr.Validation("实体 ID 不能为空")
	}
	skill, err := progression.ParseSkill(skillName)
	if err != nil {
		return nil, apperr.Validation("未知技能: %q", skillName)
	}
	if gain <= 0 {
		return nil, apperr.Validation("经验增量必须为正数，当前 %d", gain)
	}

	res := &AwardResult{EntityID: entityID, Skill: skill, RequestedGain: gain, AppliedGain: gain}
	if gain > s.maxGain {
		res.AppliedGain = s.maxGain
		res.Truncated = true
		logger.WithFields(logrus.Fields{
			"entity_id": entityID,
			"skill":     skill.Key(),
			"requested": gain,
			"applied":   s.maxGain,
		}).Warn("单次经验超过上限，已截断")
	}

	idempotencyKey = strings.TrimSpace(idempotencyKey)
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if idempotencyKey != "" {
			fresh, err := s.awards.TryRecord(ctx, &schema.AwardEvent{
				IdempotencyKey: idempotencyKey,
				EntityID:       entityID,
				Skill:          skill.Key(),
				ExperienceGain: res.AppliedGain,
			})
			if err != nil {
				return err
			}
			if !fresh {
				prior, err := s.awards.Get(ctx, idempotencyKey)
				if err != nil {
					return err
				}
				// 同一个键只能对应同一笔发放
				if prior != nil && (prior.EntityID != entityID || prior.Skill != skill.Key() || prior.ExperienceGain != res.AppliedGain) {
					return errKeyReused
				}
				res.Duplicate = true
				return nil
			}
		}

		inc, err := s.exp.Increment(ctx, entityID, skill.Key(), res.AppliedGain)
		if err != nil {
			return err
		}
		newLevel := s.table.LevelForXP(inc.Experience)
		res.Experience = inc.Experience
		res.PreviousLevel = inc.PreviousLevel
		res.Level = max(newLevel, inc.PreviousLevel)
		res.LeveledUp = newLevel > inc.PreviousLevel

		// 等级与经验同事务落库；升级时标记待同步，从不在此处清除
		if err := s.exp.RaiseLevel(ctx, entityID, skill.Key(), newLevel, res.LeveledUp); err != nil {
			return err
		}
		if !res.LeveledUp {
			return nil
		}

		var levels progression.Levels
		levels[skill] = newLevel
		_, err = s.snapshots.MergeUpsert(ctx, (&Snapshot{EntityID: entityID, Levels: levels}).Record())
		return err
	})
	if err != nil {
		if errors.Is(err, errKeyReused) {
			logger.WithFields(logrus.Fields{
				"entity_id": entityID,
				"skill":     skill.Key(),
				"key":       idempotencyKey,
			}).Warn("幂等键被用于不同的发放请求")
			return nil, apperr.Validation("幂等键 %q 已用于不同的发放请求", idempotencyKey)
		}
		return nil, apperr.Storage("写入经验失败", err)
	}

	if res.Duplicate {
		state, err := s.loadState(ctx, entityID, skill)
		if err != nil {
			return nil, err
		}
		res.Experience = state.Experience
		res.Level = state.Level
		res.PreviousLevel = state.Level
		res.AppliedGain = 0
		res.Progress = state.Progress
		logger.WithFields(logrus.Fields{
			"entity_id": entityID,
			"skill":     skill.Key(),
			"key":       idempotencyKey,
		}).Debug("重复的发放请求，忽略")
		return res, nil
	}

	res.Progress = s.table.Progress(res.Experience)
	if res.LeveledUp {
		logger.WithFields(logrus.Fields{
			"entity_id": entityID,
			"skill":     skill.Key(),
			"from":      res.PreviousLevel,
			"to":        res.Level,
		}).Info("技能升级")
		if s.publisher != nil {
			s.publisher.Publish(eventbus.LevelUp(entityID, skill.Key(), res.Level))
		}
	}
	return res, nil
}

// GetSkillState 查询单个技能；从未获得经验时返回 NotFound
func (s *LedgerService) GetSkillState(ctx context.Context, entityID, skillName string) (*SkillState, error) {
	skill, err := progression.ParseSkill(skillName)
	if err != nil {
		return nil, apperr.Validation("未知技能: %q", skillName)
	}
	return s.loadState(ctx, strings.TrimSpace(entityID), skill)
}

func (s *LedgerService) loadState(ctx context.Context, entityID string, skill progression.Skill) (*SkillState, error) {
	row, err := s.exp.Get(ctx, entityID, skill.Key())
	if err != nil {
		return nil, apperr.Storage("查询技能失败", err)
	}
	if row == nil {
		return nil, apperr.NotFound("实体 %s 没有技能 %s 的记录", entityID, skill.Key())
	}
	st := s.stateOf(skill, row.Experience, row.Level)
	st.PendingExternalSync = row.PendingExternalSync
	return &st, nil
}

// GetAllSkills 返回全部 17 个技能；未训练的技能为 1 级 0 经验
func (s *LedgerService) GetAllSkills(ctx context.Context, entityID string) (map[progression.Skill]SkillState, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, apperr.Validation("实体 ID 不能为空")
	}
	rows, err := s.exp.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, apperr.Storage("查询技能失败", err)
	}

	out := make(map[progression.Skill]SkillState, progression.SkillCount)
	for _, sk := range progression.AllSkills() {
		out[sk] = s.stateOf(sk, 0, 1)
	}
	for _, row := range rows {
		sk, err := progression.ParseSkill(row.Skill)
		if err != nil {
			logger.WithFields(logrus.Fields{"entity_id": entityID, "skill": row.Skill}).Warn("忽略未知技能记录")
			continue
		}
		st := s.stateOf(sk, row.Experience, row.Level)
		st.PendingExternalSync = row.PendingExternalSync
		out[sk] = st
	}
	return out, nil
}

func (s *LedgerService) stateOf(skill progression.Skill, xp int64, storedLevel int) SkillState {
	p := s.table.Progress(xp)
	level := max(storedLevel, p.Level, 1)
	return SkillState{Skill: skill, Experience: xp, Level: level, Progress: p}
}

// ListPending 待推送到链上的实体
func (s *LedgerService) ListPending(ctx context.Context, limit int) ([]string, error) {
	ids, err := s.exp.ListPendingEntities(ctx, limit)
	if err != nil {
		return nil, apperr.Storage("查询待同步实体失败", err)
	}
	return ids, nil
}

// PruneAwardEvents 删除超过保留期的幂等记录；retention<=0 时使用配置值
func (s *LedgerService) PruneAwardEvents(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = s.retention
	}
	cutoff := time.Now().Add(-retention)
	n, err := s.awards.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, apperr.Storage("清理发放记录失败", err)
	}
	if n > 0 {
		logger.WithFields(logrus.Fields{"deleted": n, "cutoff": cutoff.Format(time.RFC3339)}).Info("已清理过期发放记录")
	}
	return n, nil
}
