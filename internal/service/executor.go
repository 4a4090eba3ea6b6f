package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"propdesk/internal/broker"
	"propdesk/internal/config"
	"propdesk/internal/metrics"
	"propdesk/internal/models"
	"propdesk/internal/notify"
	"propdesk/internal/repository"
	"propdesk/internal/risk"
)

// Executor owns the at-most-once submit guarantee. A signal must be claimed
// (status CAS pending→claimed, client order id assigned) before the broker
// is called, so two concurrent evaluation cycles can never double-submit.
// Entry failures are terminal; only a timeout leaves the claim standing for
// the reconciler.
type Executor struct {
	Repo     repository.Repository
	Broker   broker.Broker
	Gate     *risk.Gate
	Notifier *notify.Notifier
	Logger   *zap.Logger
	Timeout  time.Duration
}

// Execute submits one accepted, sized signal. A false claim means some other
// cycle got there first and this call is a silent no-op.
func (e *Executor) Execute(ctx context.Context, sig *models.Signal, sizing risk.Sizing, trailCfg config.TrailingConfig) error {
	if e == nil || e.Repo == nil || e.Broker == nil || sig == nil {
		return nil
	}

	clientOrderID := ulid.Make().String()
	claimed, err := e.Repo.ClaimSignal(ctx, sig.ID, clientOrderID)
	if err != nil {
		return fmt.Errorf("claim signal %d: %w", sig.ID, err)
	}
	if !claimed {
		return nil
	}

	submitCtx, cancel := context.WithTimeout(ctx, e.timeout())
	fill, err := e.Broker.SubmitOrder(submitCtx, broker.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		SizeUSD:       sizing.SizeUSD,
		StopLoss:      sig.StopLoss,
		TakeProfit:    sig.TakeProfit,
		ClientOrderID: clientOrderID,
	})
	cancel()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// The order may have reached the venue. Leave the claim in
			// place; Reconcile settles it against broker-side state.
			if e.Logger != nil {
				e.Logger.Warn("order submit timed out, leaving claim for reconciliation",
					zap.Uint64("signal_id", sig.ID),
					zap.String("client_order_id", clientOrderID),
				)
			}
			return nil
		}
		var reject *broker.RejectError
		reason := err.Error()
		if errors.As(err, &reject) {
			reason = reject.Reason
		}
		// Terminal: market conditions have moved on, a retry would chase a
		// stale entry. Retry is a deliberate operator action.
		metrics.SignalsProcessed.WithLabelValues(metrics.OutcomeFailed).Inc()
		if uerr := e.Repo.UpdateSignalStatus(ctx, sig.ID, models.SignalStatusFailed, "broker: "+reason); uerr != nil {
			return uerr
		}
		if e.Logger != nil {
			e.Logger.Warn("order submit failed",
				zap.Uint64("signal_id", sig.ID),
				zap.String("reason", reason),
			)
		}
		return nil
	}

	return e.recordFill(ctx, sig, sizing.SizeUSD, sizing.RiskUSD, fill, trailCfg)
}

// Reconcile settles signals stuck in claimed: a fill found at the venue
// becomes a trade, a definitive "no such order" becomes a terminal failure.
// Anything else stays claimed for the next pass.
func (e *Executor) Reconcile(ctx context.Context, trailCfg config.TrailingConfig) error {
	if e == nil || e.Repo == nil || e.Broker == nil {
		return nil
	}
	claimed, err := e.Repo.ListSignalsByStatus(ctx, models.SignalStatusClaimed, 50)
	if err != nil {
		return err
	}
	for i := range claimed {
		sig := claimed[i]
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if sig.ClientOrderID == nil || *sig.ClientOrderID == "" {
			continue
		}
		lookupCtx, cancel := context.WithTimeout(ctx, e.timeout())
		fill, found, lerr := e.Broker.LookupOrder(lookupCtx, sig.Symbol, *sig.ClientOrderID)
		cancel()
		if lerr != nil {
			if e.Logger != nil {
				e.Logger.Warn("reconcile lookup failed", zap.Uint64("signal_id", sig.ID), zap.Error(lerr))
			}
			continue
		}
		if !found {
			metrics.SignalsProcessed.WithLabelValues(metrics.OutcomeFailed).Inc()
			if uerr := e.Repo.UpdateSignalStatus(ctx, sig.ID, models.SignalStatusFailed,
				"submit timed out and broker has no record of the order"); uerr != nil {
				return uerr
			}
			continue
		}
		// A prior pass may have recorded the trade and died before flipping
		// the signal. Finish the flip instead of colliding with the unique
		// index on trades.signal_id.
		existing, gerr := e.Repo.GetTradeByClientOrderID(ctx, *sig.ClientOrderID)
		if gerr != nil {
			if e.Logger != nil {
				e.Logger.Warn("reconcile trade lookup failed", zap.Uint64("signal_id", sig.ID), zap.Error(gerr))
			}
			continue
		}
		if existing != nil {
			if uerr := e.Repo.UpdateSignalStatus(ctx, sig.ID, models.SignalStatusExecuted,
				fmt.Sprintf("filled at %s", existing.EntryPrice.String())); uerr != nil && e.Logger != nil {
				e.Logger.Warn("reconcile status update failed", zap.Uint64("signal_id", sig.ID), zap.Error(uerr))
			}
			continue
		}
		// The timed-out submit actually filled. The requested size was not
		// persisted with the claim, so rebuild it from the fill notional
		// and the signal geometry.
		sizeUSD, riskUSD := recoverSizing(sig, fill)
		if err := e.recordFill(ctx, &sig, sizeUSD, riskUSD, fill, trailCfg); err != nil {
			// Settle the rest of the batch; this signal stays claimed and is
			// retried on the next pass.
			if e.Logger != nil {
				e.Logger.Warn("reconcile record failed", zap.Uint64("signal_id", sig.ID), zap.Error(err))
			}
			continue
		}
		if e.Logger != nil {
			e.Logger.Info("reconciled timed-out order into trade",
				zap.Uint64("signal_id", sig.ID),
				zap.String("client_order_id", *sig.ClientOrderID),
			)
		}
	}
	return nil
}

// recordFill creates the trade and its trailing state in one transaction,
// marks the signal executed, and books the open against the daily cap.
func (e *Executor) recordFill(ctx context.Context, sig *models.Signal, sizeUSD, riskUSD decimal.Decimal, fill broker.Fill, trailCfg config.TrailingConfig) error {
	now := time.Now().UTC()
	signalID := sig.ID
	trade := &models.Trade{
		SignalID:      &signalID,
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		AssetClass:    sig.AssetClass,
		EntryPrice:    fill.FillPrice,
		StopLoss:      sig.StopLoss,
		TakeProfit:    sig.TakeProfit,
		PositionSize:  sizeUSD,
		RiskAmount:    riskUSD,
		BrokerOrderID: fill.OrderID,
		ClientOrderID: fill.ClientOrderID,
		Status:        models.TradeStatusOpen,
		OpenedAt:      fill.FilledAt,
	}
	ts := &models.TrailingStop{
		Phase:              models.TrailPhaseArmed,
		HighWaterProfitPct: decimal.Zero,
		ActivationPct:      decimal.NewFromFloat(trailCfg.ActivationPct),
		TrailDistancePct:   decimal.NewFromFloat(trailCfg.TrailDistancePct),
		FallbackProfitPct:  decimal.NewFromFloat(trailCfg.FallbackProfitPct),
		MaxHoldHours:       trailCfg.MaxHoldHours,
	}
	if err := e.Repo.CreateTradeWithTrailing(ctx, trade, ts); err != nil {
		return fmt.Errorf("record trade for signal %d: %w", sig.ID, err)
	}
	if err := e.Repo.UpdateSignalStatus(ctx, sig.ID, models.SignalStatusExecuted,
		fmt.Sprintf("filled at %s", fill.FillPrice.String())); err != nil {
		return err
	}
	if e.Gate != nil {
		if err := e.Gate.ApplyOpen(ctx, trade); err != nil && e.Logger != nil {
			e.Logger.Warn("apply open to risk state failed", zap.Error(err))
		}
	}

	metrics.SignalsProcessed.WithLabelValues(metrics.OutcomeExecuted).Inc()
	metrics.TradesOpened.Inc()
	if e.Logger != nil {
		e.Logger.Info("trade opened",
			zap.Uint64("trade_id", trade.ID),
			zap.String("symbol", trade.Symbol),
			zap.String("side", trade.Side),
			zap.String("fill", fill.FillPrice.String()),
			zap.String("size_usd", sizeUSD.StringFixed(2)),
			zap.Duration("signal_age", now.Sub(sig.ReceivedAt)),
		)
	}
	if e.Notifier != nil {
		e.Notifier.TradeOpened(*trade)
	}
	return nil
}

func (e *Executor) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return 10 * time.Second
}

// recoverSizing rebuilds size and risk figures for a reconciled fill: the
// executed notional comes from the venue, the risk from that notional and
// the distance between fill and stop.
func recoverSizing(sig models.Signal, fill broker.Fill) (decimal.Decimal, decimal.Decimal) {
	sizeUSD := fill.FilledUSD
	if fill.FillPrice.LessThanOrEqual(decimal.Zero) {
		return sizeUSD, decimal.Zero
	}
	dist := fill.FillPrice.Sub(sig.StopLoss)
	if sig.Side == models.SideSell {
		dist = sig.StopLoss.Sub(fill.FillPrice)
	}
	if dist.LessThanOrEqual(decimal.Zero) {
		return sizeUSD, decimal.Zero
	}
	return sizeUSD, sizeUSD.Mul(dist).Div(fill.FillPrice)
}
