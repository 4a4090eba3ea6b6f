package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"propdesk/internal/broker"
	"propdesk/internal/metrics"
	"propdesk/internal/models"
	"propdesk/internal/notify"
	"propdesk/internal/quote"
	"propdesk/internal/repository"
	"propdesk/internal/risk"
	"propdesk/internal/trailing"
)

// Monitor walks every open trade on a short tick, feeds the current price
// through the trailing state machine, and executes whatever exit it decides.
// Exit failures are the opposite of entry failures: the position still
// exists, so the close is retried every tick until the broker accepts it.
type Monitor struct {
	Repo     repository.Repository
	Broker   broker.Broker
	Quotes   quote.Quoter
	Gate     *risk.Gate
	Settings *SettingsService
	Notifier *notify.Notifier
	Locks    *SymbolLocks
	Logger   *zap.Logger
	Interval time.Duration
	Timeout  time.Duration
}

func (m *Monitor) Run(ctx context.Context) {
	interval := m.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if m.Logger != nil {
		m.Logger.Info("trade monitor started", zap.Duration("interval", interval))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := m.RunOnce(ctx); err != nil && m.Logger != nil {
			m.Logger.Error("monitor cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce ticks every open trade exactly once.
func (m *Monitor) RunOnce(ctx context.Context) error {
	if m == nil || m.Repo == nil {
		return nil
	}
	open, err := m.Repo.ListOpenTrades(ctx)
	if err != nil {
		return err
	}
	metrics.OpenPositions.Set(float64(len(open)))
	for i := range open {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.tickTrade(ctx, &open[i]); err != nil && m.Logger != nil {
			m.Logger.Error("trade tick failed",
				zap.Uint64("trade_id", open[i].ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (m *Monitor) tickTrade(ctx context.Context, trade *models.Trade) error {
	if m.Locks != nil {
		unlock := m.Locks.Lock(trade.Symbol)
		defer unlock()
	}

	ts, err := m.Repo.GetTrailingStop(ctx, trade.ID)
	if err != nil {
		return err
	}
	if ts == nil {
		// Manually entered trade with no state row yet; arm one from the
		// current trailing settings.
		snap := m.Settings.Take(ctx)
		ts = &models.TrailingStop{
			TradeID:            trade.ID,
			Phase:              models.TrailPhaseArmed,
			HighWaterProfitPct: decimal.Zero,
			ActivationPct:      decimal.NewFromFloat(snap.Trailing.ActivationPct),
			TrailDistancePct:   decimal.NewFromFloat(snap.Trailing.TrailDistancePct),
			FallbackProfitPct:  decimal.NewFromFloat(snap.Trailing.FallbackProfitPct),
			MaxHoldHours:       snap.Trailing.MaxHoldHours,
		}
		if err := m.Repo.UpsertTrailingStop(ctx, ts); err != nil {
			return err
		}
	}

	q, ok, err := m.Quotes.Quote(ctx, trade.Symbol)
	if err != nil {
		return err
	}
	if !ok {
		// No price this tick; the position keeps its state.
		return nil
	}
	price := q.SideExit(trade.Side)

	decision := trailing.Advance(ts, *trade, price, time.Now().UTC())
	if decision.Changed {
		if err := m.Repo.UpsertTrailingStop(ctx, ts); err != nil {
			return err
		}
		if m.Logger != nil {
			m.Logger.Info("trailing state advanced",
				zap.Uint64("trade_id", trade.ID),
				zap.String("phase", ts.Phase),
				zap.String("high_water_pct", ts.HighWaterProfitPct.StringFixed(4)),
			)
		}
	}
	if !decision.Close {
		return nil
	}
	return m.closeTrade(ctx, trade, decision.CloseStatus, decision.Detail)
}

// closeTrade unwinds the position at the broker first, then settles the
// books. A broker failure leaves everything as it was; the next tick will
// re-decide and retry. Database settlement uses a CAS on the open status so
// a concurrent manual close cannot double-book the P&L.
func (m *Monitor) closeTrade(ctx context.Context, trade *models.Trade, status, detail string) error {
	closeCtx, cancel := context.WithTimeout(ctx, m.timeout())
	exitPrice, err := m.Broker.ClosePosition(closeCtx, broker.CloseRequest{
		OrderID: trade.BrokerOrderID,
		Symbol:  trade.Symbol,
		Side:    trade.Side,
		SizeUSD: trade.PositionSize,
	})
	cancel()
	if err != nil {
		metrics.CloseRetries.Inc()
		if m.Logger != nil {
			m.Logger.Warn("close at broker failed, will retry",
				zap.Uint64("trade_id", trade.ID),
				zap.String("symbol", trade.Symbol),
				zap.Error(err),
			)
		}
		return nil
	}

	pnl := trade.PnLForExit(exitPrice)
	closed, err := m.Repo.CloseTrade(ctx, repository.CloseTradeParams{
		TradeID:     trade.ID,
		Status:      status,
		Detail:      detail,
		ExitPrice:   exitPrice,
		RealizedPnL: pnl,
		ClosedAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if !closed {
		// Someone else closed it between the list and now.
		return nil
	}

	outcome, gateErr := m.Gate.ApplyClose(ctx, trade, pnl)
	if gateErr != nil && m.Logger != nil {
		m.Logger.Error("apply close to risk state failed", zap.Error(gateErr))
	}
	if err := m.Repo.DeleteTrailingStop(ctx, trade.ID); err != nil && m.Logger != nil {
		m.Logger.Warn("delete trailing state failed", zap.Uint64("trade_id", trade.ID), zap.Error(err))
	}

	metrics.TradesClosed.WithLabelValues(status).Inc()
	if gateErr == nil {
		// A zero-valued outcome would drop the gauges to 0 and report
		// trading as allowed; leave them at their last real reading.
		metrics.Equity.Set(outcome.Equity.InexactFloat64())
		metrics.DailyPnL.Set(outcome.DailyPnL.InexactFloat64())
		metrics.SetBool(metrics.TradingAllowed, !outcome.Halted && !outcome.EvaluationFailed)
	}

	if m.Logger != nil {
		m.Logger.Info("trade closed",
			zap.Uint64("trade_id", trade.ID),
			zap.String("symbol", trade.Symbol),
			zap.String("status", status),
			zap.String("exit", exitPrice.String()),
			zap.String("pnl", pnl.StringFixed(2)),
			zap.String("detail", detail),
		)
	}
	if m.Notifier != nil {
		closedCopy := *trade
		closedCopy.Status = status
		m.Notifier.TradeClosed(closedCopy, pnl.StringFixed(2))
		if outcome.Halted && !outcome.EvaluationFailed {
			m.Notifier.ComplianceHalt(outcome.HaltReason)
		}
		if outcome.EvaluationFailed {
			m.Notifier.EvaluationFailed(outcome.HaltReason)
		}
		if outcome.EvaluationPassed {
			m.Notifier.EvaluationPassed(outcome.Equity.StringFixed(2))
		}
	}
	return nil
}

// CloseManual exits one open trade on operator request, same settlement path
// as a machine-decided close.
func (m *Monitor) CloseManual(ctx context.Context, tradeID uint64, operator string) error {
	if m == nil || m.Repo == nil {
		return fmt.Errorf("monitor not configured")
	}
	trade, err := m.Repo.GetTrade(ctx, tradeID)
	if err != nil {
		return err
	}
	if trade == nil {
		return fmt.Errorf("trade %d not found", tradeID)
	}
	if trade.Closed() {
		return fmt.Errorf("trade %d already closed (%s)", tradeID, trade.Status)
	}

	if m.Locks != nil {
		unlock := m.Locks.Lock(trade.Symbol)
		defer unlock()
	}
	detail := "closed manually"
	if operator != "" {
		detail = fmt.Sprintf("closed manually by %s", operator)
	}
	if err := m.closeTrade(ctx, trade, models.TradeStatusClosedManual, detail); err != nil {
		return err
	}
	// A broker failure above returns nil by design for the retry loop, but a
	// manual caller needs to know whether the close actually happened.
	after, err := m.Repo.GetTrade(ctx, tradeID)
	if err != nil {
		return err
	}
	if after != nil && !after.Closed() {
		return fmt.Errorf("broker refused the close, trade %d still open", tradeID)
	}
	return nil
}

func (m *Monitor) timeout() time.Duration {
	if m.Timeout > 0 {
		return m.Timeout
	}
	return 10 * time.Second
}
