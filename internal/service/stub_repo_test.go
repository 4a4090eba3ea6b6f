package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"propdesk/internal/broker"
	"propdesk/internal/models"
	"propdesk/internal/quote"
	"propdesk/internal/repository"
)

// stubRepo is the shared in-memory repository for service tests. It mirrors
// the transactional guarantees the real one provides (claim and close are
// CAS, trade plus trailing is atomic); the embedded interface panics on any
// method a test was not written to exercise.
type stubRepo struct {
	repository.Repository

	mu       sync.Mutex
	signals  map[uint64]*models.Signal
	trades   map[uint64]*models.Trade
	trailing map[uint64]*models.TrailingStop
	state    *models.RiskState
	events   []models.RiskEvent
	settings map[string]*models.SystemSetting
	sources  map[string]*models.SourceState
	daily    map[string]*models.DailyStat
	nextID   uint64

	saveStateErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		signals:  make(map[uint64]*models.Signal),
		trades:   make(map[uint64]*models.Trade),
		trailing: make(map[uint64]*models.TrailingStop),
		settings: make(map[string]*models.SystemSetting),
		sources:  make(map[string]*models.SourceState),
		daily:    make(map[string]*models.DailyStat),
	}
}

func (r *stubRepo) addSignal(sig models.Signal) *models.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sig.ID = r.nextID
	if sig.Status == "" {
		sig.Status = models.SignalStatusPending
	}
	copied := sig
	r.signals[sig.ID] = &copied
	return &copied
}

func (r *stubRepo) InsertSignalIgnoreDuplicate(ctx context.Context, item *models.Signal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.signals {
		if s.Channel == item.Channel && s.SourceMessageID == item.SourceMessageID {
			return false, nil
		}
	}
	r.nextID++
	item.ID = r.nextID
	copied := *item
	r.signals[item.ID] = &copied
	return true, nil
}

func (r *stubRepo) GetSignal(ctx context.Context, id uint64) (*models.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.signals[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *stubRepo) ClaimSignal(ctx context.Context, id uint64, clientOrderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.signals[id]
	if !ok || s.Status != models.SignalStatusPending {
		return false, nil
	}
	s.Status = models.SignalStatusClaimed
	s.ClientOrderID = &clientOrderID
	return true, nil
}

func (r *stubRepo) UpdateSignalStatus(ctx context.Context, id uint64, status, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.signals[id]; ok {
		s.Status = status
		s.StatusReason = reason
	}
	return nil
}

func (r *stubRepo) ListSignalsByStatus(ctx context.Context, status string, limit int) ([]models.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Signal, 0)
	for _, s := range r.signals {
		if s.Status == status {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *stubRepo) CountSignalsSince(ctx context.Context, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.signals {
		if !s.ReceivedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *stubRepo) CreateTradeWithTrailing(ctx context.Context, trade *models.Trade, ts *models.TrailingStop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	trade.ID = r.nextID
	copied := *trade
	r.trades[trade.ID] = &copied
	if ts != nil {
		ts.TradeID = trade.ID
		tsCopied := *ts
		r.trailing[trade.ID] = &tsCopied
	}
	return nil
}

func (r *stubRepo) GetTrade(ctx context.Context, id uint64) (*models.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trades[id]
	if !ok {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

func (r *stubRepo) GetTradeByClientOrderID(ctx context.Context, clientOrderID string) (*models.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.trades {
		if t.ClientOrderID == clientOrderID {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *stubRepo) ListOpenTrades(ctx context.Context) ([]models.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Trade, 0)
	for _, t := range r.trades {
		if t.Status == models.TradeStatusOpen {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *stubRepo) CloseTrade(ctx context.Context, params repository.CloseTradeParams) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trades[params.TradeID]
	if !ok || t.Status != models.TradeStatusOpen {
		return false, nil
	}
	t.Status = params.Status
	t.CloseDetail = params.Detail
	exit := params.ExitPrice
	pnl := params.RealizedPnL
	closedAt := params.ClosedAt
	t.ExitPrice = &exit
	t.RealizedPnL = &pnl
	t.ClosedAt = &closedAt
	return true, nil
}

func (r *stubRepo) SumOpenRisk(ctx context.Context) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, t := range r.trades {
		if t.Status == models.TradeStatusOpen {
			sum = sum.Add(t.RiskAmount)
		}
	}
	return sum, nil
}

func (r *stubRepo) CountOpenTrades(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.trades {
		if t.Status == models.TradeStatusOpen {
			n++
		}
	}
	return n, nil
}

func (r *stubRepo) CountTradesOpenedSince(ctx context.Context, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.trades {
		if !t.OpenedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *stubRepo) TradeStatsBetween(ctx context.Context, since, until time.Time) (repository.TradeStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := repository.TradeStats{GrossPnL: decimal.Zero}
	for _, t := range r.trades {
		if t.ClosedAt == nil || t.ClosedAt.Before(since) || !t.ClosedAt.Before(until) {
			continue
		}
		stats.TradesClosed++
		if t.RealizedPnL != nil {
			stats.GrossPnL = stats.GrossPnL.Add(*t.RealizedPnL)
			switch {
			case t.RealizedPnL.IsPositive():
				stats.WinCount++
			case t.RealizedPnL.IsNegative():
				stats.LossCount++
			}
		}
	}
	return stats, nil
}

func (r *stubRepo) GetRiskState(ctx context.Context, accountID string) (*models.RiskState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return nil, nil
	}
	copied := *r.state
	return &copied, nil
}

func (r *stubRepo) SaveRiskState(ctx context.Context, item *models.RiskState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveStateErr != nil {
		return r.saveStateErr
	}
	copied := *item
	r.state = &copied
	return nil
}

func (r *stubRepo) AppendRiskEvent(ctx context.Context, item *models.RiskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *item)
	return nil
}

func (r *stubRepo) UpsertTrailingStop(ctx context.Context, item *models.TrailingStop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *item
	r.trailing[item.TradeID] = &copied
	return nil
}

func (r *stubRepo) GetTrailingStop(ctx context.Context, tradeID uint64) (*models.TrailingStop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.trailing[tradeID]
	if !ok {
		return nil, nil
	}
	copied := *ts
	return &copied, nil
}

func (r *stubRepo) DeleteTrailingStop(ctx context.Context, tradeID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trailing, tradeID)
	return nil
}

func (r *stubRepo) GetSourceState(ctx context.Context, channel string) (*models.SourceState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sources[channel]
	if !ok {
		return nil, nil
	}
	copied := *st
	return &copied, nil
}

func (r *stubRepo) SaveSourceState(ctx context.Context, item *models.SourceState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *item
	r.sources[item.Channel] = &copied
	return nil
}

func (r *stubRepo) GetSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.settings[key]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (r *stubRepo) UpsertSetting(ctx context.Context, item *models.SystemSetting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *item
	r.settings[item.Key] = &copied
	return nil
}

func (r *stubRepo) UpsertDailyStat(ctx context.Context, item *models.DailyStat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *item
	r.daily[item.Date.Format("2006-01-02")] = &copied
	return nil
}

// fakeQuoter serves fixed quotes by symbol.
type fakeQuoter struct {
	mu     sync.Mutex
	quotes map[string]quote.Quote
}

func newFakeQuoter() *fakeQuoter {
	return &fakeQuoter{quotes: make(map[string]quote.Quote)}
}

func (f *fakeQuoter) set(symbol, bid, ask string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[symbol] = quote.Quote{
		Symbol: symbol,
		Bid:    decimal.RequireFromString(bid),
		Ask:    decimal.RequireFromString(ask),
		At:     time.Now().UTC(),
	}
}

func (f *fakeQuoter) Quote(ctx context.Context, symbol string) (quote.Quote, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotes[symbol]
	return q, ok, nil
}

// fakeBroker scripts submit behavior per test: fail with err, time out, or
// fill at fillPrice. It records every submit so at-most-once tests can count
// them.
type fakeBroker struct {
	mu         sync.Mutex
	submits    []broker.OrderRequest
	closes     []broker.CloseRequest
	fillPrice  decimal.Decimal
	submitErr  error
	closeErr   error
	closePrice decimal.Decimal
	lookups    map[string]broker.Fill
	equity     decimal.Decimal
}

func newFakeBroker(fillPrice string) *fakeBroker {
	return &fakeBroker{
		fillPrice:  decimal.RequireFromString(fillPrice),
		closePrice: decimal.RequireFromString(fillPrice),
		lookups:    make(map[string]broker.Fill),
		equity:     decimal.NewFromInt(10000),
	}
}

func (f *fakeBroker) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, req)
	if f.submitErr != nil {
		return broker.Fill{}, f.submitErr
	}
	fill := broker.Fill{
		OrderID:       "ord-1",
		ClientOrderID: req.ClientOrderID,
		FillPrice:     f.fillPrice,
		FilledUSD:     req.SizeUSD,
		FilledAt:      time.Now().UTC(),
	}
	f.lookups[req.ClientOrderID] = fill
	return fill, nil
}

func (f *fakeBroker) ClosePosition(ctx context.Context, req broker.CloseRequest) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, req)
	if f.closeErr != nil {
		return decimal.Zero, f.closeErr
	}
	return f.closePrice, nil
}

func (f *fakeBroker) LookupOrder(ctx context.Context, symbol, clientOrderID string) (broker.Fill, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fill, ok := f.lookups[clientOrderID]
	return fill, ok, nil
}

func (f *fakeBroker) AccountEquity(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.equity, nil
}

func (f *fakeBroker) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}
