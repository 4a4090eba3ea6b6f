package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyStat is one day's trading summary, rolled up by the stats service and
// included in the daily report.
type DailyStat struct {
	ID   uint64    `gorm:"primaryKey;autoIncrement"`
	Date time.Time `gorm:"type:date;not null;uniqueIndex"`

	SignalsReceived int `gorm:"not null;default:0"`
	TradesOpened    int `gorm:"not null;default:0"`
	TradesClosed    int `gorm:"not null;default:0"`
	WinCount        int `gorm:"not null;default:0"`
	LossCount       int `gorm:"not null;default:0"`

	GrossPnL    decimal.Decimal `gorm:"column:gross_pnl;type:numeric(30,10);not null;default:0"`
	EquityClose decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (DailyStat) TableName() string {
	return "daily_stats"
}
