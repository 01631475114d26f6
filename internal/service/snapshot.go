package service

import (
	"encoding/json"

	"github.com/yuqie6/SkillLedger/internal/progression"
	"github.com/yuqie6/SkillLedger/internal/schema"
)

// Snapshot 实体在某一时刻的完整状态（数据库行或链上元数据解析而来）
// Levels 中的 0 表示该来源不知道这个技能
type Snapshot struct {
	EntityID          string             `json:"entity_id"`
	Name              string             `json:"name,omitempty"`
	Levels            progression.Levels `json:"-"`
	TotalLevel        int                `json:"total_level"`
	CombatLevel       int                `json:"combat_level"`
	ExternalRecordURI string             `json:"external_record_uri,omitempty"`
	ExternalTxRef     string             `json:"external_tx_ref,omitempty"`
	Revision          int64              `json:"revision"`
}

// SkillLevels 以技能名为键导出，便于序列化
func (s *Snapshot) SkillLevels() map[progression.Skill]int {
	out := make(map[progression.Skill]int, progression.SkillCount)
	for _, sk := range progression.AllSkills() {
		out[sk] = s.Levels.Get(sk)
	}
	return out
}

// MarshalJSON 等级以 {"attack": 5, ...} 形式输出
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot
	return json.Marshal(struct {
		alias
		Levels map[progression.Skill]int `json:"levels"`
	}{alias: alias(s), Levels: s.SkillLevels()})
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	type alias Snapshot
	var in struct {
		alias
		Levels map[progression.Skill]int `json:"levels"`
	}
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*s = Snapshot(in.alias)
	for sk, lvl := range in.Levels {
		s.Levels[sk] = lvl
	}
	return nil
}

// SnapshotFromRecord 数据库行转为快照
func SnapshotFromRecord(r *schema.EntitySnapshot) *Snapshot {
	if r == nil {
		return nil
	}
	s := &Snapshot{
		EntityID:    r.EntityID,
		Name:        r.Name,
		Levels:      r.Levels(),
		TotalLevel:  r.TotalLevel,
		CombatLevel: r.CombatLevel,
		Revision:    r.Revision,
	}
	if r.ExternalRecordURI != nil {
		s.ExternalRecordURI = *r.ExternalRecordURI
	}
	if r.ExternalTxRef != nil {
		s.ExternalTxRef = *r.ExternalTxRef
	}
	return s
}

// Record 快照转为待 upsert 的数据库行；空字符串表示“未提供”
func (s *Snapshot) Record() *schema.EntitySnapshot {
	r := &schema.EntitySnapshot{
		EntityID: s.EntityID,
		Name:     s.Name,
		Revision: s.Revision,
	}
	r.SetLevels(s.Levels)
	if s.ExternalRecordURI != "" {
		uri := s.ExternalRecordURI
		r.ExternalRecordURI = &uri
	}
	if s.ExternalTxRef != "" {
		ref := s.ExternalTxRef
		r.ExternalTxRef = &ref
	}
	return r
}

// MergeMax 逐技能取最大值合并两个快照，汇总字段总是重新计算
// 标量字段优先取 incoming，缺失时回退到 existing
func MergeMax(existing, incoming *Snapshot, w progression.CombatWeights) *Snapshot {
	if existing == nil {
		existing = &Snapshot{}
	}
	if incoming == nil {
		incoming = &Snapshot{}
	}

	out := &Snapshot{
		EntityID:          firstNonEmpty(incoming.EntityID, existing.EntityID),
		Name:              firstNonEmpty(incoming.Name, existing.Name),
		Levels:            progression.MergeLevels(existing.Levels, incoming.Levels),
		ExternalRecordURI: firstNonEmpty(incoming.ExternalRecordURI, existing.ExternalRecordURI),
		ExternalTxRef:     firstNonEmpty(incoming.ExternalTxRef, existing.ExternalTxRef),
		Revision:          max(existing.Revision, incoming.Revision),
	}
	agg := progression.Project(out.Levels, w)
	out.TotalLevel = agg.TotalLevel
	out.CombatLevel = agg.CombatLevel
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
