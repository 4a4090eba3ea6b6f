package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskState is the single mutable risk row for one trading account. All
// mutations go through the compliance gate's critical section; everything an
// operator needs to answer "why is trading blocked" lives here, with the
// transition history in risk_events.
type RiskState struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	AccountID string `gorm:"type:varchar(64);not null;uniqueIndex"`

	InitialEquity decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Equity        decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	PeakEquity    decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	DailyPnL        decimal.Decimal `gorm:"column:daily_pnl;type:numeric(30,10);not null;default:0"`
	DailyTradeCount int             `gorm:"not null;default:0"`

	DailyLossLimit   decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	MaxDrawdownLimit decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	ProfitTarget     decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	TradingAllowed   bool   `gorm:"not null;default:true"`
	HaltReason       string `gorm:"type:text"`
	EvaluationPassed bool   `gorm:"not null;default:false"`
	EvaluationFailed bool   `gorm:"not null;default:false"`

	DailyResetAt time.Time `gorm:"not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (RiskState) TableName() string {
	return "risk_state"
}

// Drawdown is the distance from the best equity seen to current equity.
func (s RiskState) Drawdown() decimal.Decimal {
	return s.PeakEquity.Sub(s.Equity)
}

// CumulativeProfit is total profit since onboarding.
func (s RiskState) CumulativeProfit() decimal.Decimal {
	return s.Equity.Sub(s.InitialEquity)
}
