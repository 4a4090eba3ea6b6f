package service

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"propdesk/internal/broker"
	"propdesk/internal/config"
	"propdesk/internal/models"
	"propdesk/internal/risk"
)

func testTrailingConfig() config.TrailingConfig {
	return config.TrailingConfig{
		ActivationPct:     4.5,
		TrailDistancePct:  1.5,
		FallbackProfitPct: 3.5,
		MaxHoldHours:      48,
	}
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		InitialEquityUSD:   10000,
		RiskPerTradePct:    2.0,
		MaxPortfolioRisk:   10.0,
		MaxPositionSizePct: 50.0,
		MinPositionSizeUSD: 100,
		MaxPositionSizeUSD: 5000,
		MaxDailyTrades:     10,
		MaxOpenTrades:      5,
		DailyLossLimitUSD:  500,
		MaxDrawdownUSD:     600,
		ProfitTargetUSD:    1000,
		MinRRByAssetClass:  map[string]float64{"crypto": 2.0, "gold_fx": 2.5},
	}
}

func newTestGate(t *testing.T, repo *stubRepo) *risk.Gate {
	t.Helper()
	gate := &risk.Gate{Cfg: testRiskConfig(), AccountID: "eval-1", Repo: repo}
	if _, err := gate.EnsureState(context.Background()); err != nil {
		t.Fatalf("ensure state: %v", err)
	}
	return gate
}

func pendingSignal(repo *stubRepo) *models.Signal {
	return repo.addSignal(models.Signal{
		Channel:         "crypto-vip",
		SourceMessageID: 1001,
		Symbol:          "BTCUSDT",
		Side:            models.SideBuy,
		AssetClass:      models.AssetClassCrypto,
		EntryPrice:      decimal.RequireFromString("100"),
		StopLoss:        decimal.RequireFromString("95"),
		TakeProfit:      decimal.RequireFromString("115"),
	})
}

func acceptedSizing() risk.Sizing {
	return risk.Sizing{
		SizeUSD: decimal.RequireFromString("3366.67"),
		RiskUSD: decimal.RequireFromString("200"),
	}
}

func TestExecutor_SuccessCreatesTradeAndTrailing(t *testing.T) {
	repo := newStubRepo()
	fb := newFakeBroker("101")
	exec := &Executor{Repo: repo, Broker: fb, Gate: newTestGate(t, repo)}
	sig := pendingSignal(repo)

	if err := exec.Execute(context.Background(), sig, acceptedSizing(), testTrailingConfig()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	stored, _ := repo.GetSignal(context.Background(), sig.ID)
	if stored.Status != models.SignalStatusExecuted {
		t.Fatalf("signal status = %s, want executed", stored.Status)
	}
	open, _ := repo.ListOpenTrades(context.Background())
	if len(open) != 1 {
		t.Fatalf("expected 1 open trade, got %d", len(open))
	}
	trade := open[0]
	if !trade.EntryPrice.Equal(decimal.RequireFromString("101")) {
		t.Fatalf("entry must be the broker fill: got %s", trade.EntryPrice.String())
	}
	if trade.SignalID == nil || *trade.SignalID != sig.ID {
		t.Fatalf("trade must link back to its signal")
	}
	ts, _ := repo.GetTrailingStop(context.Background(), trade.ID)
	if ts == nil || ts.Phase != models.TrailPhaseArmed {
		t.Fatalf("trailing state must be created armed alongside the trade")
	}
	if repo.state.DailyTradeCount != 1 {
		t.Fatalf("open must count against the daily cap, got %d", repo.state.DailyTradeCount)
	}
}

func TestExecutor_DoubleExecuteSubmitsOnce(t *testing.T) {
	repo := newStubRepo()
	fb := newFakeBroker("101")
	exec := &Executor{Repo: repo, Broker: fb, Gate: newTestGate(t, repo)}
	sig := pendingSignal(repo)

	if err := exec.Execute(context.Background(), sig, acceptedSizing(), testTrailingConfig()); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	// A second cycle racing on the same signal loses the claim and must not
	// touch the broker.
	if err := exec.Execute(context.Background(), sig, acceptedSizing(), testTrailingConfig()); err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if got := fb.submitCount(); got != 1 {
		t.Fatalf("broker submits = %d, want exactly 1", got)
	}
	open, _ := repo.ListOpenTrades(context.Background())
	if len(open) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(open))
	}
}

func TestExecutor_RejectIsTerminal(t *testing.T) {
	repo := newStubRepo()
	fb := newFakeBroker("101")
	fb.submitErr = &broker.RejectError{Reason: "insufficient margin"}
	exec := &Executor{Repo: repo, Broker: fb, Gate: newTestGate(t, repo)}
	sig := pendingSignal(repo)

	if err := exec.Execute(context.Background(), sig, acceptedSizing(), testTrailingConfig()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	stored, _ := repo.GetSignal(context.Background(), sig.ID)
	if stored.Status != models.SignalStatusFailed {
		t.Fatalf("rejected submit must fail the signal, got %s", stored.Status)
	}
	if !strings.Contains(stored.StatusReason, "insufficient margin") {
		t.Fatalf("failure reason must carry the broker message, got %q", stored.StatusReason)
	}
	open, _ := repo.ListOpenTrades(context.Background())
	if len(open) != 0 {
		t.Fatalf("no trade may exist after a rejected submit")
	}
}

func TestExecutor_TimeoutLeavesClaimForReconcile(t *testing.T) {
	repo := newStubRepo()
	fb := newFakeBroker("101")
	fb.submitErr = context.DeadlineExceeded
	exec := &Executor{Repo: repo, Broker: fb, Gate: newTestGate(t, repo)}
	sig := pendingSignal(repo)

	if err := exec.Execute(context.Background(), sig, acceptedSizing(), testTrailingConfig()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	stored, _ := repo.GetSignal(context.Background(), sig.ID)
	if stored.Status != models.SignalStatusClaimed {
		t.Fatalf("timed-out submit must stay claimed, got %s", stored.Status)
	}
	if stored.ClientOrderID == nil || *stored.ClientOrderID == "" {
		t.Fatalf("claim must persist the client order id for reconciliation")
	}
}

func TestExecutor_ReconcileFilledOrderBecomesTrade(t *testing.T) {
	repo := newStubRepo()
	fb := newFakeBroker("101")
	exec := &Executor{Repo: repo, Broker: fb, Gate: newTestGate(t, repo)}
	sig := pendingSignal(repo)

	// Simulate a submit that filled at the venue but timed out client-side:
	// the signal is claimed and the broker knows the client order id.
	clientID := "01JX0000000000000000000000"
	if ok, _ := repo.ClaimSignal(context.Background(), sig.ID, clientID); !ok {
		t.Fatalf("claim failed")
	}
	fb.lookups[clientID] = broker.Fill{
		OrderID:       "ord-9",
		ClientOrderID: clientID,
		FillPrice:     decimal.RequireFromString("101"),
		FilledUSD:     decimal.RequireFromString("3366.67"),
	}

	if err := exec.Reconcile(context.Background(), testTrailingConfig()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	stored, _ := repo.GetSignal(context.Background(), sig.ID)
	if stored.Status != models.SignalStatusExecuted {
		t.Fatalf("reconciled fill must execute the signal, got %s", stored.Status)
	}
	open, _ := repo.ListOpenTrades(context.Background())
	if len(open) != 1 {
		t.Fatalf("expected 1 trade after reconcile, got %d", len(open))
	}
	if open[0].RiskAmount.IsZero() {
		t.Fatalf("reconciled trade must carry a recovered risk amount")
	}
}

func TestExecutor_ReconcileFinishesPartiallyRecordedFill(t *testing.T) {
	repo := newStubRepo()
	fb := newFakeBroker("101")
	exec := &Executor{Repo: repo, Broker: fb, Gate: newTestGate(t, repo)}
	sig := pendingSignal(repo)

	// A prior pass recorded the trade and died before flipping the signal:
	// the trade row exists but the signal is still claimed.
	clientID := "01JX0000000000000000000002"
	if ok, _ := repo.ClaimSignal(context.Background(), sig.ID, clientID); !ok {
		t.Fatalf("claim failed")
	}
	fill := broker.Fill{
		OrderID:       "ord-12",
		ClientOrderID: clientID,
		FillPrice:     decimal.RequireFromString("101"),
		FilledUSD:     decimal.RequireFromString("3366.67"),
	}
	fb.lookups[clientID] = fill
	signalID := sig.ID
	if err := repo.CreateTradeWithTrailing(context.Background(), &models.Trade{
		SignalID:      &signalID,
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		AssetClass:    sig.AssetClass,
		EntryPrice:    fill.FillPrice,
		StopLoss:      sig.StopLoss,
		TakeProfit:    sig.TakeProfit,
		PositionSize:  fill.FilledUSD,
		RiskAmount:    decimal.RequireFromString("200"),
		ClientOrderID: clientID,
		Status:        models.TradeStatusOpen,
	}, nil); err != nil {
		t.Fatalf("seed trade: %v", err)
	}

	// A second stuck claim behind it in the batch must still settle.
	other := repo.addSignal(models.Signal{
		Channel:         "crypto-vip",
		SourceMessageID: 1002,
		Symbol:          "ETHUSDT",
		Side:            models.SideBuy,
		AssetClass:      models.AssetClassCrypto,
		EntryPrice:      decimal.RequireFromString("2000"),
		StopLoss:        decimal.RequireFromString("1900"),
		TakeProfit:      decimal.RequireFromString("2300"),
	})
	otherID := "01JX0000000000000000000003"
	if ok, _ := repo.ClaimSignal(context.Background(), other.ID, otherID); !ok {
		t.Fatalf("claim failed")
	}
	fb.lookups[otherID] = broker.Fill{
		OrderID:       "ord-13",
		ClientOrderID: otherID,
		FillPrice:     decimal.RequireFromString("2000"),
		FilledUSD:     decimal.RequireFromString("1000"),
	}

	if err := exec.Reconcile(context.Background(), testTrailingConfig()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	stored, _ := repo.GetSignal(context.Background(), sig.ID)
	if stored.Status != models.SignalStatusExecuted {
		t.Fatalf("signal with a recorded trade must flip to executed, got %s", stored.Status)
	}
	open, _ := repo.ListOpenTrades(context.Background())
	if len(open) != 2 {
		t.Fatalf("expected 2 trades (no duplicate for the recorded fill), got %d", len(open))
	}
	storedOther, _ := repo.GetSignal(context.Background(), other.ID)
	if storedOther.Status != models.SignalStatusExecuted {
		t.Fatalf("later claims in the batch must still settle, got %s", storedOther.Status)
	}
}

func TestExecutor_ReconcileUnknownOrderFailsSignal(t *testing.T) {
	repo := newStubRepo()
	fb := newFakeBroker("101")
	exec := &Executor{Repo: repo, Broker: fb, Gate: newTestGate(t, repo)}
	sig := pendingSignal(repo)

	if ok, _ := repo.ClaimSignal(context.Background(), sig.ID, "01JX0000000000000000000001"); !ok {
		t.Fatalf("claim failed")
	}
	if err := exec.Reconcile(context.Background(), testTrailingConfig()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	stored, _ := repo.GetSignal(context.Background(), sig.ID)
	if stored.Status != models.SignalStatusFailed {
		t.Fatalf("order unknown at venue must fail the signal, got %s", stored.Status)
	}
}
