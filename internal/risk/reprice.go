package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"propdesk/internal/config"
	"propdesk/internal/models"
	"propdesk/internal/quote"
)

// Evaluation is the result of repricing one signal against the live market.
// It is computed fresh on every pass and never persisted on its own; only
// the verdict (accepted or the rejection reason) lands on the signal row.
type Evaluation struct {
	ReferencePrice decimal.Decimal
	Risk           decimal.Decimal
	Reward         decimal.Decimal
	RR             decimal.Decimal
	MinRR          decimal.Decimal
	Accepted       bool
	RejectReason   string
}

// Reprice recomputes risk and reward using the current market price as the
// effective entry, not the price the channel quoted when the signal was
// posted. A buy pays the ask, a sell hits the bid. Exactly at the minimum
// ratio is accepted; anything below it, or a non-positive risk (price moved
// through the stop already), is a final rejection for this signal.
func Reprice(sig models.Signal, q quote.Quote, minRR decimal.Decimal) Evaluation {
	current := q.SideEntry(sig.Side)
	ev := Evaluation{ReferencePrice: current, MinRR: minRR}

	if sig.Side == models.SideBuy {
		ev.Risk = current.Sub(sig.StopLoss)
		ev.Reward = sig.TakeProfit.Sub(current)
	} else {
		ev.Risk = sig.StopLoss.Sub(current)
		ev.Reward = current.Sub(sig.TakeProfit)
	}

	if ev.Risk.LessThanOrEqual(decimal.Zero) {
		ev.RejectReason = fmt.Sprintf("non-positive risk at current price %s (stop %s)",
			current.String(), sig.StopLoss.String())
		return ev
	}

	ev.RR = ev.Reward.Div(ev.Risk)
	if ev.RR.LessThan(minRR) {
		ev.RejectReason = fmt.Sprintf("rr %s below minimum %s for %s at price %s",
			ev.RR.StringFixed(2), minRR.StringFixed(2), sig.AssetClass, current.String())
		return ev
	}

	ev.Accepted = true
	return ev
}

// MinRRFor resolves the configured minimum reward:risk for an asset class.
// An unknown class falls back to the strictest configured minimum, so a
// missing map entry can only make the filter tighter, never looser.
func MinRRFor(cfg config.RiskConfig, assetClass string) decimal.Decimal {
	if v, ok := cfg.MinRRByAssetClass[assetClass]; ok && v > 0 {
		return decimal.NewFromFloat(v)
	}
	strictest := 0.0
	for _, v := range cfg.MinRRByAssetClass {
		if v > strictest {
			strictest = v
		}
	}
	if strictest <= 0 {
		strictest = 2.0
	}
	return decimal.NewFromFloat(strictest)
}
