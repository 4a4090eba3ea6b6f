package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TrailPhaseArmed     = "armed"
	TrailPhaseActivated = "activated"
	TrailPhaseTrailing  = "trailing"
	TrailPhaseClosed    = "closed"
)

// TrailingStop is the monitor's state for one open trade. The pct thresholds
// are snapshotted from config when the trade opens, so a config change never
// rewrites the rules of a position already in flight. The row is deleted once
// the trade reaches a terminal status.
type TrailingStop struct {
	TradeID uint64 `gorm:"primaryKey"`

	Phase string `gorm:"type:varchar(16);not null;default:'armed';index"`

	// HighWaterProfitPct only ever ratchets upward while trailing.
	HighWaterProfitPct decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`

	ActivationPct     decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	TrailDistancePct  decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	FallbackProfitPct decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	MaxHoldHours      int             `gorm:"not null"`

	ActivatedAt *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (TrailingStop) TableName() string {
	return "trailing_stop_state"
}

// EffectiveStopPct is the profit level that triggers a trail close, defined
// once the machine is past Armed.
func (ts TrailingStop) EffectiveStopPct() decimal.Decimal {
	return ts.HighWaterProfitPct.Sub(ts.TrailDistancePct)
}
