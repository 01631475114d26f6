package schema

import "time"

// SkillExperience 实体在单个技能上的经验记录
// 每个 (entity_id, skill) 一行，首次获得经验时惰性创建
type SkillExperience struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement"`
	EntityID            string    `gorm:"size:128;not null;uniqueIndex:uniq_entity_skill,priority:1"`
	Skill               string    `gorm:"size:32;not null;uniqueIndex:uniq_entity_skill,priority:2"`
	Experience          int64     `gorm:"not null;default:0"`           // 单调不减
	Level               int       `gorm:"not null;default:1"`           // 始终等于 LevelForXP(Experience)
	PendingExternalSync bool      `gorm:"not null;default:false;index"` // 升级后尚未成功推送到链上
	CreatedAt           time.Time `gorm:"autoCreateTime"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`
}

func (SkillExperience) TableName() string {
	return "skill_experiences"
}
