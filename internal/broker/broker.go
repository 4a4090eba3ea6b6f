package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest is one market entry. SizeUSD is quote-currency notional; the
// adapter converts to whatever unit its venue wants. ClientOrderID must be
// unique per signal so a timed-out submit can be found again.
type OrderRequest struct {
	Symbol        string
	Side          string
	SizeUSD       decimal.Decimal
	StopLoss      decimal.Decimal
	TakeProfit    decimal.Decimal
	ClientOrderID string
}

// Fill is a confirmed execution. FillPrice is the venue's actual price,
// which may differ from the reference price the filter used. FilledUSD is
// the executed quote-currency notional.
type Fill struct {
	OrderID       string
	ClientOrderID string
	FillPrice     decimal.Decimal
	FilledUSD     decimal.Decimal
	FilledAt      time.Time
}

// CloseRequest unwinds an open position at market.
type CloseRequest struct {
	OrderID string
	Symbol  string
	Side    string
	SizeUSD decimal.Decimal
}

// RejectError is a definitive broker no: bad order, insufficient margin,
// market closed. Entries hitting it are terminal; only exits retry.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("broker rejected order: %s", e.Reason)
}

// Broker is the execution boundary. All calls are blocking I/O; callers wrap
// them in a bounded-timeout context. LookupOrder exists for reconciliation:
// a submit that timed out client-side may still have filled at the venue.
type Broker interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (Fill, error)
	// ClosePosition returns the exit fill price.
	ClosePosition(ctx context.Context, req CloseRequest) (decimal.Decimal, error)
	// LookupOrder reports (fill, true, nil) when the venue knows the client
	// order id and it filled, (Fill{}, false, nil) when the venue has no
	// record of it.
	LookupOrder(ctx context.Context, symbol, clientOrderID string) (Fill, bool, error)
	AccountEquity(ctx context.Context) (decimal.Decimal, error)
}
