package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TradeStatusOpen         = "open"
	TradeStatusClosedTP     = "closed_tp"
	TradeStatusClosedSL     = "closed_sl"
	TradeStatusClosedTrail  = "closed_trail"
	TradeStatusClosedManual = "closed_manual"
)

// Trade is one executed position. Created only after a successful broker
// fill; status and the close fields are the only mutable parts. SignalID is
// nil for manually entered trades and unique otherwise, which is what makes
// "a signal cannot be executed twice" a database guarantee rather than a
// code-path promise.
type Trade struct {
	ID       uint64  `gorm:"primaryKey;autoIncrement"`
	SignalID *uint64 `gorm:"uniqueIndex"`

	Symbol     string `gorm:"type:varchar(32);not null;index"`
	Side       string `gorm:"type:varchar(8);not null"`
	AssetClass string `gorm:"type:varchar(16);not null"`

	// EntryPrice is the broker fill, which may differ from the signal entry.
	EntryPrice decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	StopLoss   decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	TakeProfit decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	// PositionSize is USD notional. RiskAmount is the USD lost if the stop is
	// hit; the portfolio risk guard sums this column over open trades.
	PositionSize decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	RiskAmount   decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	BrokerOrderID string `gorm:"type:varchar(64);index"`
	ClientOrderID string `gorm:"type:varchar(32);not null;index"`

	Status      string `gorm:"type:varchar(20);not null;default:'open';index"`
	CloseDetail string `gorm:"type:text"`

	ExitPrice   *decimal.Decimal `gorm:"type:numeric(30,10)"`
	RealizedPnL *decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10)"`

	OpenedAt time.Time  `gorm:"not null;index"`
	ClosedAt *time.Time `gorm:"index"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Trade) TableName() string {
	return "trades"
}

// Closed reports whether the trade is in any terminal status.
func (t Trade) Closed() bool {
	return t.Status != TradeStatusOpen
}

// UnrealizedProfitPct returns the signed unrealized profit as a percent of
// entry, for the given mark price.
func (t Trade) UnrealizedProfitPct(price decimal.Decimal) decimal.Decimal {
	if t.EntryPrice.IsZero() {
		return decimal.Zero
	}
	move := price.Sub(t.EntryPrice)
	if t.Side == SideSell {
		move = move.Neg()
	}
	return move.Div(t.EntryPrice).Mul(decimal.NewFromInt(100))
}

// PnLForExit converts an exit price into USD PnL for this trade's notional.
func (t Trade) PnLForExit(exitPrice decimal.Decimal) decimal.Decimal {
	if t.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return t.PositionSize.Mul(t.UnrealizedProfitPct(exitPrice)).Div(decimal.NewFromInt(100))
}
