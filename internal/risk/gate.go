package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"propdesk/internal/config"
	"propdesk/internal/models"
	"propdesk/internal/repository"
)

// Entry block reasons, surfaced so an operator can tell "blocked by risk
// limits" apart from "no good signals today".
const (
	BlockTradingHalted    = "trading halted"
	BlockEvaluationFailed = "evaluation failed"
	BlockDailyTradeCap    = "daily trade cap reached"
	BlockOpenTradeCap     = "max open trades reached"
)

// Gate is the per-account compliance state machine. Every mutation of the
// risk state runs under one mutex, so concurrent closes cannot lose updates
// and limit checks always see a consistent row.
type Gate struct {
	Cfg       config.RiskConfig
	AccountID string
	Repo      repository.Repository
	Logger    *zap.Logger

	mu sync.Mutex
}

// EntryVerdict is the result of an entry-permission check.
type EntryVerdict struct {
	Allowed bool
	Reason  string
	// Equity at check time, for the sizer.
	Equity decimal.Decimal
}

// CloseOutcome reports which transitions a closed trade triggered, so the
// caller can notify without re-deriving state.
type CloseOutcome struct {
	Equity           decimal.Decimal
	DailyPnL         decimal.Decimal
	Halted           bool
	HaltReason       string
	EvaluationPassed bool
	EvaluationFailed bool
}

// EnsureState creates the account's risk row at first boot. An existing row
// is returned untouched; the limits on it are authoritative after onboarding
// so that a config edit never silently rewrites a live evaluation.
func (g *Gate) EnsureState(ctx context.Context) (*models.RiskState, error) {
	if g == nil || g.Repo == nil {
		return nil, fmt.Errorf("risk gate not configured")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.Repo.GetRiskState(ctx, g.AccountID)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}

	equity := decimal.NewFromFloat(g.Cfg.InitialEquityUSD)
	state = &models.RiskState{
		AccountID:        g.AccountID,
		InitialEquity:    equity,
		Equity:           equity,
		PeakEquity:       equity,
		DailyPnL:         decimal.Zero,
		DailyTradeCount:  0,
		DailyLossLimit:   decimal.NewFromFloat(g.Cfg.DailyLossLimitUSD),
		MaxDrawdownLimit: decimal.NewFromFloat(g.Cfg.MaxDrawdownUSD),
		ProfitTarget:     decimal.NewFromFloat(g.Cfg.ProfitTargetUSD),
		TradingAllowed:   true,
		DailyResetAt:     time.Now().UTC(),
	}
	if err := g.Repo.SaveRiskState(ctx, state); err != nil {
		return nil, err
	}
	if g.Logger != nil {
		g.Logger.Info("risk state created",
			zap.String("account", g.AccountID),
			zap.String("equity", equity.StringFixed(2)),
		)
	}
	return state, nil
}

// CheckEntry decides whether a new position may be opened right now. The
// daily counter check is a pure count, independent of P&L.
func (g *Gate) CheckEntry(ctx context.Context) (EntryVerdict, error) {
	if g == nil || g.Repo == nil {
		return EntryVerdict{}, fmt.Errorf("risk gate not configured")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.Repo.GetRiskState(ctx, g.AccountID)
	if err != nil || state == nil {
		return EntryVerdict{}, err
	}
	verdict := EntryVerdict{Equity: state.Equity}

	if state.EvaluationFailed {
		verdict.Reason = BlockEvaluationFailed
		return verdict, nil
	}
	if !state.TradingAllowed {
		verdict.Reason = BlockTradingHalted
		if state.HaltReason != "" {
			verdict.Reason = fmt.Sprintf("%s: %s", BlockTradingHalted, state.HaltReason)
		}
		return verdict, nil
	}
	if g.Cfg.MaxDailyTrades > 0 && state.DailyTradeCount >= g.Cfg.MaxDailyTrades {
		verdict.Reason = BlockDailyTradeCap
		return verdict, nil
	}
	if g.Cfg.MaxOpenTrades > 0 {
		open, err := g.Repo.CountOpenTrades(ctx)
		if err != nil {
			return verdict, err
		}
		if open >= int64(g.Cfg.MaxOpenTrades) {
			verdict.Reason = BlockOpenTradeCap
			return verdict, nil
		}
	}

	verdict.Allowed = true
	return verdict, nil
}

// ApplyOpen counts a freshly opened trade against the daily cap.
func (g *Gate) ApplyOpen(ctx context.Context, trade *models.Trade) error {
	if g == nil || g.Repo == nil || trade == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.Repo.GetRiskState(ctx, g.AccountID)
	if err != nil || state == nil {
		return err
	}
	state.DailyTradeCount++
	if err := g.Repo.SaveRiskState(ctx, state); err != nil {
		return err
	}
	g.appendEvent(ctx, models.RiskEventTradeOpened, map[string]any{
		"trade_id":          trade.ID,
		"symbol":            trade.Symbol,
		"side":              trade.Side,
		"position_size":     trade.PositionSize.StringFixed(2),
		"risk_usd":          trade.RiskAmount.StringFixed(2),
		"daily_trade_count": state.DailyTradeCount,
	})
	return nil
}

// ApplyClose books realized P&L and runs the state machine: a daily loss at
// or past the limit halts trading until the next reset, a drawdown past the
// hard limit fails the evaluation permanently, and equity reaching the
// profit target marks the evaluation passed. Passed is terminal for the
// cycle but does not stop trading; failed does.
func (g *Gate) ApplyClose(ctx context.Context, trade *models.Trade, pnl decimal.Decimal) (CloseOutcome, error) {
	if g == nil || g.Repo == nil {
		return CloseOutcome{}, fmt.Errorf("risk gate not configured")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.Repo.GetRiskState(ctx, g.AccountID)
	if err != nil || state == nil {
		return CloseOutcome{}, err
	}

	state.Equity = state.Equity.Add(pnl)
	state.DailyPnL = state.DailyPnL.Add(pnl)
	if state.Equity.GreaterThan(state.PeakEquity) {
		state.PeakEquity = state.Equity
	}

	out := CloseOutcome{}

	if !state.EvaluationFailed && state.Drawdown().GreaterThan(state.MaxDrawdownLimit) {
		state.EvaluationFailed = true
		state.TradingAllowed = false
		state.HaltReason = fmt.Sprintf("drawdown %s exceeds limit %s",
			state.Drawdown().StringFixed(2), state.MaxDrawdownLimit.StringFixed(2))
		out.EvaluationFailed = true
		out.Halted = true
		out.HaltReason = state.HaltReason
	}
	if !out.EvaluationFailed && state.TradingAllowed &&
		state.DailyPnL.LessThanOrEqual(state.DailyLossLimit.Neg()) {
		state.TradingAllowed = false
		state.HaltReason = fmt.Sprintf("daily pnl %s breached loss limit %s",
			state.DailyPnL.StringFixed(2), state.DailyLossLimit.StringFixed(2))
		out.Halted = true
		out.HaltReason = state.HaltReason
	}
	if !state.EvaluationFailed && !state.EvaluationPassed &&
		state.CumulativeProfit().GreaterThanOrEqual(state.ProfitTarget) {
		state.EvaluationPassed = true
		out.EvaluationPassed = true
	}

	if err := g.Repo.SaveRiskState(ctx, state); err != nil {
		return out, err
	}

	tradeID := uint64(0)
	symbol := ""
	if trade != nil {
		tradeID = trade.ID
		symbol = trade.Symbol
	}
	g.appendEvent(ctx, models.RiskEventTradeClosed, map[string]any{
		"trade_id":  tradeID,
		"symbol":    symbol,
		"pnl":       pnl.StringFixed(2),
		"equity":    state.Equity.StringFixed(2),
		"daily_pnl": state.DailyPnL.StringFixed(2),
	})
	if out.Halted && !out.EvaluationFailed {
		g.appendEvent(ctx, models.RiskEventDailyHalt, map[string]any{"reason": out.HaltReason})
	}
	if out.EvaluationFailed {
		g.appendEvent(ctx, models.RiskEventEvaluationFailed, map[string]any{"reason": out.HaltReason})
	}
	if out.EvaluationPassed {
		g.appendEvent(ctx, models.RiskEventEvaluationPassed, map[string]any{
			"equity": state.Equity.StringFixed(2),
			"target": state.ProfitTarget.StringFixed(2),
		})
	}

	if g.Logger != nil && (out.Halted || out.EvaluationPassed || out.EvaluationFailed) {
		g.Logger.Warn("risk gate transition",
			zap.Bool("halted", out.Halted),
			zap.Bool("passed", out.EvaluationPassed),
			zap.Bool("failed", out.EvaluationFailed),
			zap.String("reason", out.HaltReason),
		)
	}

	out.Equity = state.Equity
	out.DailyPnL = state.DailyPnL
	return out, nil
}

// DailyReset zeroes the daily counters at the configured boundary and
// re-enables trading unless the evaluation already failed, which is
// irreversible without operator intervention.
func (g *Gate) DailyReset(ctx context.Context) error {
	if g == nil || g.Repo == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.Repo.GetRiskState(ctx, g.AccountID)
	if err != nil || state == nil {
		return err
	}

	state.DailyPnL = decimal.Zero
	state.DailyTradeCount = 0
	state.DailyResetAt = time.Now().UTC()
	reEnabled := false
	if !state.EvaluationFailed && !state.TradingAllowed {
		state.TradingAllowed = true
		state.HaltReason = ""
		reEnabled = true
	}
	if err := g.Repo.SaveRiskState(ctx, state); err != nil {
		return err
	}
	g.appendEvent(ctx, models.RiskEventDailyReset, map[string]any{
		"re_enabled":        reEnabled,
		"evaluation_failed": state.EvaluationFailed,
	})
	if g.Logger != nil {
		g.Logger.Info("daily risk reset",
			zap.Bool("re_enabled", reEnabled),
			zap.Bool("evaluation_failed", state.EvaluationFailed),
		)
	}
	return nil
}

// SyncEquity reconciles engine equity against the broker's figure. Drift is
// expected on live accounts (fees, funding, fills outside the engine); large
// drift is logged but still applied, the broker is the source of truth.
func (g *Gate) SyncEquity(ctx context.Context, brokerEquity decimal.Decimal) error {
	if g == nil || g.Repo == nil || brokerEquity.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.Repo.GetRiskState(ctx, g.AccountID)
	if err != nil || state == nil {
		return err
	}
	if state.Equity.Equal(brokerEquity) {
		return nil
	}
	drift := brokerEquity.Sub(state.Equity)
	state.Equity = brokerEquity
	if state.Equity.GreaterThan(state.PeakEquity) {
		state.PeakEquity = state.Equity
	}
	if err := g.Repo.SaveRiskState(ctx, state); err != nil {
		return err
	}
	g.appendEvent(ctx, models.RiskEventEquitySynced, map[string]any{
		"equity": state.Equity.StringFixed(2),
		"drift":  drift.StringFixed(2),
	})
	if g.Logger != nil {
		g.Logger.Info("equity synced from broker",
			zap.String("equity", state.Equity.StringFixed(2)),
			zap.String("drift", drift.StringFixed(2)),
		)
	}
	return nil
}

// EnableTrading is the operator override: it clears the halt and the failed
// flag after an external review. Never called by the engine itself.
func (g *Gate) EnableTrading(ctx context.Context, operator string) error {
	if g == nil || g.Repo == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.Repo.GetRiskState(ctx, g.AccountID)
	if err != nil || state == nil {
		return err
	}
	state.TradingAllowed = true
	state.EvaluationFailed = false
	state.HaltReason = ""
	if err := g.Repo.SaveRiskState(ctx, state); err != nil {
		return err
	}
	g.appendEvent(ctx, models.RiskEventTradingEnabled, map[string]any{"operator": operator})
	if g.Logger != nil {
		g.Logger.Warn("trading re-enabled by operator", zap.String("operator", operator))
	}
	return nil
}

// State returns the current row for read-only callers (API, reporter).
func (g *Gate) State(ctx context.Context) (*models.RiskState, error) {
	if g == nil || g.Repo == nil {
		return nil, nil
	}
	return g.Repo.GetRiskState(ctx, g.AccountID)
}

func (g *Gate) appendEvent(ctx context.Context, eventType string, detail map[string]any) {
	raw, _ := json.Marshal(detail)
	err := g.Repo.AppendRiskEvent(ctx, &models.RiskEvent{
		AccountID: g.AccountID,
		EventType: eventType,
		Detail:    datatypes.JSON(raw),
	})
	if err != nil && g.Logger != nil {
		g.Logger.Warn("append risk event failed", zap.String("event", eventType), zap.Error(err))
	}
}
