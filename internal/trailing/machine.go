package trailing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"propdesk/internal/models"
)

// Decision is one tick's verdict for an open position. Changed means the
// state row moved (phase or high-water mark) and must be persisted; Close
// means the position should be exited now with the given status. The machine
// itself never talks to the broker, so a failed close simply produces the
// same decision again on the next tick.
type Decision struct {
	Changed     bool
	Close       bool
	CloseStatus string
	Detail      string
}

// Advance runs the trailing state machine for one price tick. The thresholds
// on the state row were snapshotted when the trade opened; the machine only
// reads them. High water only ever ratchets upward, so the effective stop
// never moves against the position.
func Advance(ts *models.TrailingStop, trade models.Trade, price decimal.Decimal, now time.Time) Decision {
	if ts == nil || ts.Phase == models.TrailPhaseClosed || price.LessThanOrEqual(decimal.Zero) {
		return Decision{}
	}

	// The original stop loss and take profit stay live in every phase.
	if touchedStopLoss(trade, price) {
		return Decision{
			Close:       true,
			CloseStatus: models.TradeStatusClosedSL,
			Detail:      fmt.Sprintf("stop loss %s touched at %s", trade.StopLoss.String(), price.String()),
		}
	}
	if touchedTakeProfit(trade, price) {
		return Decision{
			Close:       true,
			CloseStatus: models.TradeStatusClosedTP,
			Detail:      fmt.Sprintf("take profit %s touched at %s", trade.TakeProfit.String(), price.String()),
		}
	}

	profitPct := trade.UnrealizedProfitPct(price)
	out := Decision{}

	switch ts.Phase {
	case models.TrailPhaseArmed:
		if profitPct.GreaterThanOrEqual(ts.ActivationPct) {
			ts.Phase = models.TrailPhaseActivated
			ts.HighWaterProfitPct = profitPct
			t := now
			ts.ActivatedAt = &t
			out.Changed = true
		}
	case models.TrailPhaseActivated, models.TrailPhaseTrailing:
		if profitPct.GreaterThan(ts.HighWaterProfitPct) {
			ts.HighWaterProfitPct = profitPct
			out.Changed = true
		}
		if ts.Phase == models.TrailPhaseActivated {
			ts.Phase = models.TrailPhaseTrailing
			out.Changed = true
		}
		if profitPct.LessThanOrEqual(ts.EffectiveStopPct()) {
			out.Close = true
			out.CloseStatus = models.TradeStatusClosedTrail
			out.Detail = fmt.Sprintf("retraced to %s%% from high %s%% (trail %s%%)",
				profitPct.StringFixed(2), ts.HighWaterProfitPct.StringFixed(2), ts.TrailDistancePct.StringFixed(2))
			return out
		}
	}

	// A winner that stalls above the fallback floor past the maximum hold
	// time is taken off the table rather than left open indefinitely.
	if ts.MaxHoldHours > 0 && now.Sub(trade.OpenedAt) > time.Duration(ts.MaxHoldHours)*time.Hour &&
		profitPct.GreaterThanOrEqual(ts.FallbackProfitPct) {
		out.Close = true
		out.CloseStatus = models.TradeStatusClosedTrail
		out.Detail = fmt.Sprintf("max hold %dh exceeded at %s%% profit (floor %s%%)",
			ts.MaxHoldHours, profitPct.StringFixed(2), ts.FallbackProfitPct.StringFixed(2))
	}

	return out
}

func touchedStopLoss(trade models.Trade, price decimal.Decimal) bool {
	if trade.StopLoss.LessThanOrEqual(decimal.Zero) {
		return false
	}
	if trade.Side == models.SideSell {
		return price.GreaterThanOrEqual(trade.StopLoss)
	}
	return price.LessThanOrEqual(trade.StopLoss)
}

func touchedTakeProfit(trade models.Trade, price decimal.Decimal) bool {
	if trade.TakeProfit.LessThanOrEqual(decimal.Zero) {
		return false
	}
	if trade.Side == models.SideSell {
		return price.LessThanOrEqual(trade.TakeProfit)
	}
	return price.GreaterThanOrEqual(trade.TakeProfit)
}
