package progression

import (
	"fmt"
	"strings"
)

// Skill 技能枚举（封闭集合，共 17 个）
type Skill int

const (
	Attack Skill = iota
	Strength
	Defense
	Magic
	Projectiles
	Vitality
	Mining
	Woodcutting
	Fishing
	Farming
	Hunting
	Smithing
	Crafting
	Cooking
	Alchemy
	Construction
	Luck
)

// SkillCount 技能总数
const SkillCount = 17

// Category 技能分类
type Category string

const (
	CategoryCombat    Category = "combat"
	CategoryGathering Category = "gathering"
	CategoryCrafting  Category = "crafting"
	CategoryUnique    Category = "unique"
)

type skillInfo struct {
	key      string
	name     string
	category Category
}

// 顺序必须与枚举一致；数组长度保证穷举
var skillTable = [SkillCount]skillInfo{
	Attack:       {"attack", "Attack", CategoryCombat},
	Strength:     {"strength", "Strength", CategoryCombat},
	Defense:      {"defense", "Defense", CategoryCombat},
	Magic:        {"magic", "Magic", CategoryCombat},
	Projectiles:  {"projectiles", "Projectiles", CategoryCombat},
	Vitality:     {"vitality", "Vitality", CategoryCombat},
	Mining:       {"mining", "Mining", CategoryGathering},
	Woodcutting:  {"woodcutting", "Woodcutting", CategoryGathering},
	Fishing:      {"fishing", "Fishing", CategoryGathering},
	Farming:      {"farming", "Farming", CategoryGathering},
	Hunting:      {"hunting", "Hunting", CategoryGathering},
	Smithing:     {"smithing", "Smithing", CategoryCrafting},
	Crafting:     {"crafting", "Crafting", CategoryCrafting},
	Cooking:      {"cooking", "Cooking", CategoryCrafting},
	Alchemy:      {"alchemy", "Alchemy", CategoryCrafting},
	Construction: {"construction", "Construction", CategoryCrafting},
	Luck:         {"luck", "Luck", CategoryUnique},
}

var skillByKey = func() map[string]Skill {
	m := make(map[string]Skill, SkillCount)
	for i, info := range skillTable {
		m[info.key] = Skill(i)
	}
	return m
}()

// AllSkills 按枚举顺序返回全部技能
func AllSkills() []Skill {
	out := make([]Skill, SkillCount)
	for i := range out {
		out[i] = Skill(i)
	}
	return out
}

// Valid 是否属于封闭技能集合
func (s Skill) Valid() bool {
	return s >= 0 && int(s) < SkillCount
}

// Key 存储/序列化用的稳定标识
func (s Skill) Key() string {
	if !s.Valid() {
		return ""
	}
	return skillTable[s].key
}

// DisplayName 展示名
func (s Skill) DisplayName() string {
	if !s.Valid() {
		return ""
	}
	return skillTable[s].name
}

// Category 技能分类
func (s Skill) Category() Category {
	if !s.Valid() {
		return ""
	}
	return skillTable[s].category
}

func (s Skill) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Skill(%d)", int(s))
	}
	return skillTable[s].key
}

// ParseSkill 解析技能名（忽略大小写与首尾空白）
func ParseSkill(name string) (Skill, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if s, ok := skillByKey[key]; ok {
		return s, nil
	}
	return -1, fmt.Errorf("未知技能: %q", name)
}

// MarshalText 使 Skill 可作为 JSON map key
func (s Skill) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("非法技能: %d", int(s))
	}
	return []byte(s.Key()), nil
}

// UnmarshalText 解析 JSON 中的技能名
func (s *Skill) UnmarshalText(b []byte) error {
	parsed, err := ParseSkill(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
