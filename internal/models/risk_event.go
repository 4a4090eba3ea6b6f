package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RiskEventTradeOpened      = "trade_opened"
	RiskEventTradeClosed      = "trade_closed"
	RiskEventDailyHalt        = "daily_loss_halt"
	RiskEventEvaluationPassed = "evaluation_passed"
	RiskEventEvaluationFailed = "evaluation_failed"
	RiskEventDailyReset       = "daily_reset"
	RiskEventTradingEnabled   = "trading_enabled"
	RiskEventEquitySynced     = "equity_synced"
)

// RiskEvent is the append-only audit trail behind risk_state. One row per
// gate transition or P&L application; never updated or deleted.
type RiskEvent struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	AccountID string `gorm:"type:varchar(64);not null;index"`

	EventType string `gorm:"type:varchar(32);not null;index"`
	Detail    datatypes.JSON

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (RiskEvent) TableName() string {
	return "risk_events"
}
