package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"propdesk/internal/models"
)

// SchemaMigration records which versions have been applied. Migrations are
// forward-only: a version runs once, inside a transaction, and is never
// edited afterward; schema fixes get a new version.
type SchemaMigration struct {
	Version   int       `gorm:"primaryKey"`
	Name      string    `gorm:"type:varchar(128);not null"`
	AppliedAt time.Time `gorm:"not null"`
}

func (SchemaMigration) TableName() string {
	return "schema_migrations"
}

type migration struct {
	Version int
	Name    string
	Run     func(tx *gorm.DB) error
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "core tables",
		Run: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Signal{},
				&models.Trade{},
				&models.RiskState{},
				&models.TrailingStop{},
			)
		},
	},
	{
		Version: 2,
		Name:    "audit and ops tables",
		Run: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.RiskEvent{},
				&models.SourceState{},
				&models.SystemSetting{},
				&models.DailyStat{},
			)
		},
	},
}

// Migrate applies pending versions in order at startup.
func Migrate(db *DB) error {
	if db == nil || db.Gorm == nil {
		return nil
	}
	if err := db.Gorm.AutoMigrate(&SchemaMigration{}); err != nil {
		return err
	}
	for _, m := range migrations {
		var applied int64
		if err := db.Gorm.Model(&SchemaMigration{}).Where("version = ?", m.Version).Count(&applied).Error; err != nil {
			return err
		}
		if applied > 0 {
			continue
		}
		err := db.Gorm.Transaction(func(tx *gorm.DB) error {
			if err := m.Run(tx); err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{
				Version:   m.Version,
				Name:      m.Name,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}
