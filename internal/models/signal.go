package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	SideBuy  = "Buy"
	SideSell = "Sell"
)

const (
	AssetClassCrypto = "crypto"
	AssetClassGoldFX = "gold_fx"
)

// Signal lifecycle. A signal enters as pending and ends in exactly one of the
// terminal states; the claimed state exists only while a broker submit is in
// flight (or awaiting reconciliation after a timeout).
const (
	SignalStatusPending           = "pending"
	SignalStatusRejectedRR        = "rejected_rr"
	SignalStatusRejectedSizing    = "rejected_sizing"
	SignalStatusBlockedCompliance = "blocked_compliance"
	SignalStatusClaimed           = "claimed"
	SignalStatusExecuted          = "executed"
	SignalStatusFailed            = "failed"
)

// Signal is the canonical record of one inbound trading signal. Rows are
// append-only; only Status and StatusReason change after insert. The
// (channel, source_message_id) pair is unique so redelivery of the same
// message is a no-op.
type Signal struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	Channel         string `gorm:"type:varchar(128);not null;uniqueIndex:idx_signals_channel_msg"`
	SourceMessageID int64  `gorm:"not null;uniqueIndex:idx_signals_channel_msg"`

	ReceivedAt time.Time `gorm:"not null;index"`

	Symbol     string `gorm:"type:varchar(32);not null;index"`
	Side       string `gorm:"type:varchar(8);not null"`
	AssetClass string `gorm:"type:varchar(16);not null;index"`

	EntryPrice decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	StopLoss   decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	TakeProfit decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	Status       string `gorm:"type:varchar(24);not null;default:'pending';index"`
	StatusReason string `gorm:"type:text"`

	// ClientOrderID is assigned at claim time and sent to the broker, so a
	// timed-out submit can be reconciled by looking the order up again.
	ClientOrderID *string `gorm:"type:varchar(32);index"`

	// Raw holds the original message payload for audit.
	Raw datatypes.JSON

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Signal) TableName() string {
	return "signals"
}

// fxCodes covers the majors traded by the gold/FX channels. Symbols built
// from two of these (e.g. EURUSD, XAUUSD) are classified gold_fx; everything
// else defaults to crypto.
var fxCodes = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "JPY": {}, "AUD": {},
	"NZD": {}, "CAD": {}, "CHF": {}, "XAU": {}, "XAG": {},
}

// AssetClassFor derives the asset class from a symbol.
func AssetClassFor(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if len(s) == 6 {
		_, baseOK := fxCodes[s[:3]]
		_, quoteOK := fxCodes[s[3:]]
		if baseOK && quoteOK {
			return AssetClassGoldFX
		}
	}
	return AssetClassCrypto
}
