package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"propdesk/internal/ingest"
	"propdesk/internal/metrics"
	"propdesk/internal/models"
	"propdesk/internal/quote"
	"propdesk/internal/repository"
	"propdesk/internal/risk"
)

// Pipeline is the intake loop: drain the signal sources into canonical rows,
// then walk the pending backlog through reprice, sizing and the compliance
// gate, handing survivors to the executor. Each cycle works off a single
// settings snapshot; a pending signal that cannot be evaluated this cycle
// (no quote, auto trading off) simply stays pending for the next one.
type Pipeline struct {
	Repo       repository.Repository
	Sources    []ingest.Source
	Normalizer *ingest.Normalizer
	Quotes     quote.Quoter
	Gate       *risk.Gate
	Executor   *Executor
	Settings   *SettingsService
	Locks      *SymbolLocks
	Logger     *zap.Logger
	Interval   time.Duration
}

func (p *Pipeline) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if p.Logger != nil {
		p.Logger.Info("signal pipeline started", zap.Duration("interval", interval))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := p.RunOnce(ctx); err != nil && p.Logger != nil {
			p.Logger.Error("pipeline cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce runs exactly one intake-plus-evaluation cycle.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	if p == nil || p.Repo == nil {
		return nil
	}
	p.drainSources(ctx)

	snap := p.Settings.Take(ctx)
	if !snap.AutoTradingEnabled {
		if p.Logger != nil {
			p.Logger.Debug("auto trading disabled, leaving backlog pending")
		}
		return nil
	}
	return p.processPending(ctx, snap)
}

// drainSources pulls whatever each source accumulated and inserts canonical
// rows. A message that fails to parse is counted and dropped; it never gets
// a signal row. Source errors advance nothing and are retried next cycle.
func (p *Pipeline) drainSources(ctx context.Context) {
	for _, src := range p.Sources {
		if src == nil {
			continue
		}
		msgs, err := src.Poll(ctx)
		if err != nil {
			if p.Logger != nil {
				p.Logger.Warn("source poll failed", zap.String("source", src.Name()), zap.Error(err))
			}
			p.recordSourceError(ctx, src.Name(), err)
			continue
		}
		for i := range msgs {
			p.intakeMessage(ctx, msgs[i])
		}
	}
}

func (p *Pipeline) intakeMessage(ctx context.Context, msg ingest.RawMessage) {
	defer p.advanceWatermark(ctx, msg.Channel, msg.MessageID)

	parsed, err := ingest.Parse(msg.Text)
	if err != nil {
		// Chatter, edits, admin notices. Normal channel traffic, not a fault.
		metrics.SignalsProcessed.WithLabelValues(metrics.OutcomeParseError).Inc()
		if p.Logger != nil {
			p.Logger.Debug("message not a signal",
				zap.String("channel", msg.Channel),
				zap.Int64("message_id", msg.MessageID),
			)
		}
		return
	}
	sig, created, err := p.Normalizer.Normalize(ctx, msg, parsed)
	if err != nil {
		metrics.SignalsProcessed.WithLabelValues(metrics.OutcomeParseError).Inc()
		if p.Logger != nil {
			p.Logger.Warn("signal rejected at intake",
				zap.String("channel", msg.Channel),
				zap.Int64("message_id", msg.MessageID),
				zap.Error(err),
			)
		}
		return
	}
	if !created {
		metrics.SignalsProcessed.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		return
	}
	if p.Logger != nil {
		p.Logger.Info("signal received",
			zap.Uint64("signal_id", sig.ID),
			zap.String("channel", sig.Channel),
			zap.String("symbol", sig.Symbol),
			zap.String("side", sig.Side),
		)
	}
}

// processPending evaluates the pending backlog oldest first. Order matters:
// reprice against the live market, size against current equity, then ask the
// gate; a signal only reaches the broker having passed all three this cycle.
func (p *Pipeline) processPending(ctx context.Context, snap Snapshot) error {
	pending, err := p.Repo.ListSignalsByStatus(ctx, models.SignalStatusPending, 50)
	if err != nil {
		return err
	}
	for i := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.evaluateSignal(ctx, &pending[i], snap); err != nil && p.Logger != nil {
			p.Logger.Error("signal evaluation failed",
				zap.Uint64("signal_id", pending[i].ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (p *Pipeline) evaluateSignal(ctx context.Context, sig *models.Signal, snap Snapshot) error {
	if p.Locks != nil {
		unlock := p.Locks.Lock(sig.Symbol)
		defer unlock()
	}

	q, ok, err := p.Quotes.Quote(ctx, sig.Symbol)
	if err != nil {
		return err
	}
	if !ok {
		// No market data for this symbol right now; stays pending.
		if p.Logger != nil {
			p.Logger.Debug("no quote, deferring signal",
				zap.Uint64("signal_id", sig.ID),
				zap.String("symbol", sig.Symbol),
			)
		}
		return nil
	}

	ev := risk.Reprice(*sig, q, risk.MinRRFor(snap.Risk, sig.AssetClass))
	if !ev.Accepted {
		metrics.SignalsProcessed.WithLabelValues(metrics.OutcomeRejectedRR).Inc()
		if p.Logger != nil {
			p.Logger.Info("signal rejected on reward:risk",
				zap.Uint64("signal_id", sig.ID),
				zap.String("reason", ev.RejectReason),
			)
		}
		return p.Repo.UpdateSignalStatus(ctx, sig.ID, models.SignalStatusRejectedRR, ev.RejectReason)
	}

	verdict, err := p.Gate.CheckEntry(ctx)
	if err != nil {
		return err
	}

	openRisk, err := p.Repo.SumOpenRisk(ctx)
	if err != nil {
		return err
	}
	sizing := risk.ComputePositionSize(snap.Risk, risk.SizingInput{
		Equity:   verdict.Equity,
		Price:    ev.ReferencePrice,
		Risk:     ev.Risk,
		OpenRisk: openRisk,
	})
	if sizing.Rejected {
		metrics.SignalsProcessed.WithLabelValues(metrics.OutcomeSizing).Inc()
		reason := sizing.RejectReason
		if sizing.RejectDetail != "" {
			reason = sizing.RejectReason + ": " + sizing.RejectDetail
		}
		if p.Logger != nil {
			p.Logger.Info("signal rejected on sizing",
				zap.Uint64("signal_id", sig.ID),
				zap.String("reason", reason),
			)
		}
		return p.Repo.UpdateSignalStatus(ctx, sig.ID, models.SignalStatusRejectedSizing, reason)
	}

	if !verdict.Allowed {
		metrics.SignalsProcessed.WithLabelValues(metrics.OutcomeCompliance).Inc()
		if p.Logger != nil {
			p.Logger.Info("signal blocked by risk gate",
				zap.Uint64("signal_id", sig.ID),
				zap.String("reason", verdict.Reason),
			)
		}
		return p.Repo.UpdateSignalStatus(ctx, sig.ID, models.SignalStatusBlockedCompliance, verdict.Reason)
	}

	return p.Executor.Execute(ctx, sig, sizing, snap.Trailing)
}

func (p *Pipeline) advanceWatermark(ctx context.Context, channel string, messageID int64) {
	if channel == "" {
		return
	}
	state, err := p.Repo.GetSourceState(ctx, channel)
	if err != nil {
		return
	}
	if state == nil {
		state = &models.SourceState{Channel: channel}
	}
	if messageID <= state.LastMessageID {
		return
	}
	now := time.Now().UTC()
	state.LastMessageID = messageID
	state.LastCheckAt = &now
	state.LastError = nil
	if err := p.Repo.SaveSourceState(ctx, state); err != nil && p.Logger != nil {
		p.Logger.Warn("save source watermark failed", zap.String("channel", channel), zap.Error(err))
	}
}

func (p *Pipeline) recordSourceError(ctx context.Context, name string, pollErr error) {
	state, err := p.Repo.GetSourceState(ctx, name)
	if err != nil {
		return
	}
	if state == nil {
		state = &models.SourceState{Channel: name}
	}
	now := time.Now().UTC()
	msg := pollErr.Error()
	state.LastCheckAt = &now
	state.LastError = &msg
	if err := p.Repo.SaveSourceState(ctx, state); err != nil && p.Logger != nil {
		p.Logger.Warn("save source state failed", zap.String("channel", name), zap.Error(err))
	}
}
