package models

import "time"

// SourceState is the per-channel intake watermark. Poll cycles only ask the
// source for messages beyond LastMessageID, so a restart never refetches the
// whole history (the unique index on signals would drop duplicates anyway,
// this just keeps the fetches cheap).
type SourceState struct {
	Channel       string  `gorm:"primaryKey;type:varchar(128)"`
	LastMessageID int64   `gorm:"not null;default:0"`
	LastCheckAt   *time.Time
	LastError     *string `gorm:"type:text"`
}

func (SourceState) TableName() string {
	return "source_states"
}
