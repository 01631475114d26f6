package schema

import "time"

// SyncStatus 外部同步状态
type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusSucceeded SyncStatus = "succeeded"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncAttempt 一次链上元数据推送的记录（运维排查用）
type SyncAttempt struct {
	ID         string     `gorm:"primaryKey;size:36"` // uuid
	EntityID   string     `gorm:"size:128;not null;index:idx_sync_entity_started,priority:1"`
	Revision   int64      `gorm:"not null;default:0"`
	URI        string     `gorm:"size:512"`
	Signature  string     `gorm:"size:256"`
	Status     SyncStatus `gorm:"size:16;not null;index"`
	Stage      string     `gorm:"size:16"` // upload / chain
	Error      string     `gorm:"type:text"`
	StartedAt  time.Time  `gorm:"not null;index:idx_sync_entity_started,priority:2"`
	FinishedAt *time.Time
}

func (SyncAttempt) TableName() string {
	return "sync_attempts"
}
