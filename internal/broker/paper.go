package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"propdesk/internal/models"
	"propdesk/internal/quote"
)

// Paper simulates a broker against live quotes: entries fill at the touch
// with no slippage, closes fill at the opposite side, and equity moves with
// realized P&L. It is the default mode; the engine cannot tell it apart from
// a real venue.
type Paper struct {
	Quotes quote.Quoter
	Logger *zap.Logger

	mu        sync.Mutex
	equity    decimal.Decimal
	positions map[string]paperPosition // by order id
	byClient  map[string]Fill          // submit history, for reconciliation
	seq       int64
}

type paperPosition struct {
	symbol  string
	side    string
	sizeUSD decimal.Decimal
	entry   decimal.Decimal
}

func NewPaper(quotes quote.Quoter, initialEquity decimal.Decimal, logger *zap.Logger) *Paper {
	return &Paper{
		Quotes:    quotes,
		Logger:    logger,
		equity:    initialEquity,
		positions: make(map[string]paperPosition),
		byClient:  make(map[string]Fill),
	}
}

func (p *Paper) SubmitOrder(ctx context.Context, req OrderRequest) (Fill, error) {
	if p == nil || p.Quotes == nil {
		return Fill{}, fmt.Errorf("paper broker not configured")
	}
	if req.SizeUSD.LessThanOrEqual(decimal.Zero) {
		return Fill{}, &RejectError{Reason: "non-positive size"}
	}
	q, ok, err := p.Quotes.Quote(ctx, req.Symbol)
	if err != nil {
		return Fill{}, err
	}
	if !ok {
		return Fill{}, &RejectError{Reason: fmt.Sprintf("no quote for %s", req.Symbol)}
	}

	price := q.SideEntry(req.Side)
	p.mu.Lock()
	defer p.mu.Unlock()

	// Same client order id twice returns the original fill, matching a real
	// venue's idempotent client-id behavior.
	if prior, seen := p.byClient[req.ClientOrderID]; seen {
		return prior, nil
	}

	p.seq++
	fill := Fill{
		OrderID:       fmt.Sprintf("paper-%d", p.seq),
		ClientOrderID: req.ClientOrderID,
		FillPrice:     price,
		FilledUSD:     req.SizeUSD,
		FilledAt:      time.Now().UTC(),
	}
	p.positions[fill.OrderID] = paperPosition{
		symbol:  strings.ToUpper(req.Symbol),
		side:    req.Side,
		sizeUSD: req.SizeUSD,
		entry:   price,
	}
	p.byClient[req.ClientOrderID] = fill
	if p.Logger != nil {
		p.Logger.Debug("paper fill",
			zap.String("symbol", req.Symbol),
			zap.String("side", req.Side),
			zap.String("price", price.String()),
			zap.String("size_usd", req.SizeUSD.StringFixed(2)),
		)
	}
	return fill, nil
}

func (p *Paper) ClosePosition(ctx context.Context, req CloseRequest) (decimal.Decimal, error) {
	if p == nil || p.Quotes == nil {
		return decimal.Zero, fmt.Errorf("paper broker not configured")
	}
	q, ok, err := p.Quotes.Quote(ctx, req.Symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, &RejectError{Reason: fmt.Sprintf("no quote for %s", req.Symbol)}
	}
	exit := q.SideExit(req.Side)

	p.mu.Lock()
	defer p.mu.Unlock()
	pos, found := p.positions[req.OrderID]
	if !found {
		// Already closed; idempotent.
		return exit, nil
	}
	delete(p.positions, req.OrderID)

	if pos.entry.GreaterThan(decimal.Zero) {
		move := exit.Sub(pos.entry)
		if pos.side == models.SideSell {
			move = move.Neg()
		}
		pnl := pos.sizeUSD.Mul(move).Div(pos.entry)
		p.equity = p.equity.Add(pnl)
	}
	return exit, nil
}

func (p *Paper) LookupOrder(ctx context.Context, symbol, clientOrderID string) (Fill, bool, error) {
	if p == nil {
		return Fill{}, false, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fill, ok := p.byClient[clientOrderID]
	return fill, ok, nil
}

func (p *Paper) AccountEquity(ctx context.Context) (decimal.Decimal, error) {
	if p == nil {
		return decimal.Zero, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.equity, nil
}
