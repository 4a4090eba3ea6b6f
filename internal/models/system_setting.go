package models

import (
	"time"

	"gorm.io/datatypes"
)

// SystemSetting stores runtime-tunable settings in DB so operators can flip
// switches (kill switch, notifications) without a redeploy. Values are JSON:
// plain true/false for switches, objects for richer overrides.
type SystemSetting struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Key string `gorm:"type:varchar(120);not null;uniqueIndex"`

	Value datatypes.JSON `gorm:"not null"`

	Description string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime;index"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}
