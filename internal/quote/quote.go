package quote

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"propdesk/internal/models"
)

// Quote is one bid/ask snapshot for a symbol.
type Quote struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	At     time.Time
}

// Mid is the bid/ask midpoint, used for display and PnL marks.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// SideEntry is the price a market order on the given side would pay right
// now: buys lift the ask, sells hit the bid.
func (q Quote) SideEntry(side string) decimal.Decimal {
	if side == models.SideSell {
		return q.Bid
	}
	return q.Ask
}

// SideExit is the price unwinding a position on the given side would get:
// closing a long sells into the bid, closing a short buys the ask.
func (q Quote) SideExit(side string) decimal.Decimal {
	if side == models.SideSell {
		return q.Ask
	}
	return q.Bid
}

// Quoter answers per-symbol quote lookups. The bool distinguishes "no quote
// for this symbol right now, skip it this cycle" from a transport error; an
// unknown or unlisted symbol is not an error.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (Quote, bool, error)
}
