package schema

import (
	"time"

	"github.com/yuqie6/SkillLedger/internal/progression"
)

// EntitySnapshot 实体当前状态（权威行）
// 每个技能一列，只能通过逐列取最大值的 upsert 修改，等级永不回退。
type EntitySnapshot struct {
	EntityID string `gorm:"primaryKey;size:128"`
	Name     string `gorm:"size:200"`

	LevelAttack       int `gorm:"column:level_attack;not null;default:1"`
	LevelStrength     int `gorm:"column:level_strength;not null;default:1"`
	LevelDefense      int `gorm:"column:level_defense;not null;default:1"`
	LevelMagic        int `gorm:"column:level_magic;not null;default:1"`
	LevelProjectiles  int `gorm:"column:level_projectiles;not null;default:1"`
	LevelVitality     int `gorm:"column:level_vitality;not null;default:1"`
	LevelMining       int `gorm:"column:level_mining;not null;default:1"`
	LevelWoodcutting  int `gorm:"column:level_woodcutting;not null;default:1"`
	LevelFishing      int `gorm:"column:level_fishing;not null;default:1"`
	LevelFarming      int `gorm:"column:level_farming;not null;default:1"`
	LevelHunting      int `gorm:"column:level_hunting;not null;default:1"`
	LevelSmithing     int `gorm:"column:level_smithing;not null;default:1"`
	LevelCrafting     int `gorm:"column:level_crafting;not null;default:1"`
	LevelCooking      int `gorm:"column:level_cooking;not null;default:1"`
	LevelAlchemy      int `gorm:"column:level_alchemy;not null;default:1"`
	LevelConstruction int `gorm:"column:level_construction;not null;default:1"`
	LevelLuck         int `gorm:"column:level_luck;not null;default:1"`

	TotalLevel  int `gorm:"not null;default:17"` // 由各技能等级重新计算，从不沿用
	CombatLevel int `gorm:"not null;default:1"`

	ExternalRecordURI *string `gorm:"size:512"` // 最近一次成功上传的内容地址
	ExternalTxRef     *string `gorm:"size:256"` // 最近一次成功的链上交易签名
	Revision          int64   `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (EntitySnapshot) TableName() string {
	return "entity_snapshots"
}

// LevelColumn 技能对应的等级列名
func LevelColumn(s progression.Skill) string {
	return "level_" + s.Key()
}

func (e *EntitySnapshot) levelFields() [progression.SkillCount]*int {
	return [progression.SkillCount]*int{
		progression.Attack:       &e.LevelAttack,
		progression.Strength:     &e.LevelStrength,
		progression.Defense:      &e.LevelDefense,
		progression.Magic:        &e.LevelMagic,
		progression.Projectiles:  &e.LevelProjectiles,
		progression.Vitality:     &e.LevelVitality,
		progression.Mining:       &e.LevelMining,
		progression.Woodcutting:  &e.LevelWoodcutting,
		progression.Fishing:      &e.LevelFishing,
		progression.Farming:      &e.LevelFarming,
		progression.Hunting:      &e.LevelHunting,
		progression.Smithing:     &e.LevelSmithing,
		progression.Crafting:     &e.LevelCrafting,
		progression.Cooking:      &e.LevelCooking,
		progression.Alchemy:      &e.LevelAlchemy,
		progression.Construction: &e.LevelConstruction,
		progression.Luck:         &e.LevelLuck,
	}
}

// Levels 读取全部技能等级
func (e *EntitySnapshot) Levels() progression.Levels {
	var out progression.Levels
	for i, p := range e.levelFields() {
		out[i] = *p
	}
	return out
}

// SetLevels 写入全部技能等级（未知等级按 1 级）
func (e *EntitySnapshot) SetLevels(l progression.Levels) {
	l = l.Normalized()
	for i, p := range e.levelFields() {
		*p = l[i]
	}
}
