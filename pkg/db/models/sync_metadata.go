package models

import "time"

// SyncMetadata is a key/value row for engine bookkeeping such as the
// legacy migration marker.
type SyncMetadata struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (SyncMetadata) TableName() string {
	return "sync_metadata"
}
