package progression

import "math"

// Levels 按技能枚举索引的等级数组；0 表示未知，按 1 级计
type Levels [SkillCount]int

// Aggregates 实体级派生数值
type Aggregates struct {
	TotalLevel  int `json:"total_level"`
	CombatLevel int `json:"combat_level"`
}

// CombatWeights 战斗等级公式中的平衡参数（属于游戏设计配置）
type CombatWeights struct {
	MagicWeight    float64 `json:"magic_weight"`
	MagicDivisor   float64 `json:"magic_divisor"`
	RangedDivisor  float64 `json:"ranged_divisor"`
	VitalityWeight float64 `json:"vitality_weight"`
}

// DefaultCombatWeights 默认平衡参数
var DefaultCombatWeights = CombatWeights{
	MagicWeight:    1.5,
	MagicDivisor:   2.5,
	RangedDivisor:  2.0,
	VitalityWeight: 0.25,
}

// Normalize 非法的除数回退为默认值
func (w CombatWeights) Normalize() CombatWeights {
	if w.MagicDivisor <= 0 {
		w.MagicDivisor = DefaultCombatWeights.MagicDivisor
	}
	if w.RangedDivisor <= 0 {
		w.RangedDivisor = DefaultCombatWeights.RangedDivisor
	}
	if w.MagicWeight < 0 {
		w.MagicWeight = DefaultCombatWeights.MagicWeight
	}
	if w.VitalityWeight < 0 {
		w.VitalityWeight = DefaultCombatWeights.VitalityWeight
	}
	return w
}

// Get 读取等级，未训练（<1）按 1 级
func (l Levels) Get(s Skill) int {
	if !s.Valid() || l[s] < 1 {
		return 1
	}
	return l[s]
}

// Normalized 所有技能补齐到至少 1 级
func (l Levels) Normalized() Levels {
	var out Levels
	for i := range l {
		out[i] = l.Get(Skill(i))
	}
	return out
}

// TotalLevel 全部 17 个技能等级之和
func TotalLevel(l Levels) int {
	total := 0
	for i := range l {
		total += l.Get(Skill(i))
	}
	return total
}

// CombatLevel 取三种战斗风格中最强者，再叠加生命值加成
func CombatLevel(l Levels, w CombatWeights) int {
	w = w.Normalize()
	attack := float64(l.Get(Attack))
	strength := float64(l.Get(Strength))
	defense := float64(l.Get(Defense))
	magic := float64(l.Get(Magic))
	projectiles := float64(l.Get(Projectiles))
	vitality := float64(l.Get(Vitality))

	melee := (attack + strength + defense) / 3
	magicStyle := (magic*w.MagicWeight + defense) / w.MagicDivisor
	rangedStyle := (projectiles + defense) / w.RangedDivisor

	best := math.Max(melee, math.Max(magicStyle, rangedStyle))
	return int(math.Floor(best + vitality*w.VitalityWeight))
}

// Project 从零重新计算派生数值，从不增量修补
func Project(l Levels, w CombatWeights) Aggregates {
	return Aggregates{
		TotalLevel:  TotalLevel(l),
		CombatLevel: CombatLevel(l, w),
	}
}

// MergeLevels 逐技能取最大值（未知按 1 级）
func MergeLevels(existing, incoming Levels) Levels {
	var out Levels
	for i := range out {
		s := Skill(i)
		out[i] = max(existing.Get(s), incoming.Get(s))
	}
	return out
}

// MaxOf 返回逐技能的最大等级，适用于多个来源
func MaxOf(sources ...Levels) Levels {
	var out Levels
	out = out.Normalized()
	for _, src := range sources {
		out = MergeLevels(out, src)
	}
	return out
}
