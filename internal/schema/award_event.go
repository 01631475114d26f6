package schema

import "time"

// AwardEvent 经验发放的幂等记录
// 同一个 IdempotencyKey 只能插入一次；载荷仅用于排查，不会被重放。
type AwardEvent struct {
	IdempotencyKey string    `gorm:"primaryKey;size:191"`
	EntityID       string    `gorm:"size:128;not null;index"`
	Skill          string    `gorm:"size:32;not null"`
	ExperienceGain int64     `gorm:"not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index"`
}

func (AwardEvent) TableName() string {
	return "award_events"
}
