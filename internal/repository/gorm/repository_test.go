package gormrepository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"propdesk/internal/config"
	"propdesk/internal/db"
	"propdesk/internal/models"
	"propdesk/internal/repository"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.Open(config.DBConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(conn.Gorm)
}

func TestSignalLifecycleOnSQLite(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	receivedAt := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	sig := &models.Signal{
		Channel:         "crypto_signals",
		SourceMessageID: 42,
		ReceivedAt:      receivedAt,
		Symbol:          "BTCUSDT",
		Side:            models.SideBuy,
		AssetClass:      models.AssetClassCrypto,
		EntryPrice:      decimal.NewFromInt(100),
		StopLoss:        decimal.NewFromInt(95),
		TakeProfit:      decimal.NewFromInt(115),
		Status:          models.SignalStatusPending,
		Raw:             []byte(`{"text":"BUY BTCUSDT"}`),
	}
	created, err := store.InsertSignalIgnoreDuplicate(ctx, sig)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !created {
		t.Fatalf("first insert must create a row")
	}

	dup := *sig
	dup.ID = 0
	created, err = store.InsertSignalIgnoreDuplicate(ctx, &dup)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if created {
		t.Fatalf("redelivery of the same message must be a no-op")
	}

	// The status scan must survive the round trip, timestamps included.
	pending, err := store.ListSignalsByStatus(ctx, models.SignalStatusPending, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if !pending[0].ReceivedAt.Equal(receivedAt) {
		t.Fatalf("received_at = %v, want %v", pending[0].ReceivedAt, receivedAt)
	}

	ok, err := store.ClaimSignal(ctx, sig.ID, "pd-test-1")
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	ok, err = store.ClaimSignal(ctx, sig.ID, "pd-test-2")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatalf("a claimed signal must not be claimable again")
	}
}

func TestTradeRoundTripOnSQLite(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	signalID := uint64(7)
	trade := &models.Trade{
		SignalID:      &signalID,
		Symbol:        "BTCUSDT",
		Side:          models.SideBuy,
		AssetClass:    models.AssetClassCrypto,
		EntryPrice:    decimal.NewFromInt(101),
		StopLoss:      decimal.NewFromInt(95),
		TakeProfit:    decimal.NewFromInt(115),
		PositionSize:  decimal.NewFromFloat(3366.67),
		RiskAmount:    decimal.NewFromInt(200),
		ClientOrderID: "pd-test-7",
		Status:        models.TradeStatusOpen,
		OpenedAt:      time.Now().UTC(),
	}
	ts := &models.TrailingStop{
		Phase:             models.TrailPhaseArmed,
		ActivationPct:     decimal.NewFromFloat(4.5),
		TrailDistancePct:  decimal.NewFromFloat(1.5),
		FallbackProfitPct: decimal.NewFromFloat(3.5),
		MaxHoldHours:      48,
	}
	if err := store.CreateTradeWithTrailing(ctx, trade, ts); err != nil {
		t.Fatalf("create trade: %v", err)
	}

	open, err := store.ListOpenTrades(ctx)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open trades = %d, want 1", len(open))
	}

	byOrder, err := store.GetTradeByClientOrderID(ctx, "pd-test-7")
	if err != nil {
		t.Fatalf("lookup by client order id: %v", err)
	}
	if byOrder == nil || byOrder.ID != trade.ID {
		t.Fatalf("lookup by client order id returned %+v", byOrder)
	}

	risk, err := store.SumOpenRisk(ctx)
	if err != nil {
		t.Fatalf("sum open risk: %v", err)
	}
	if !risk.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("open risk = %s, want 200", risk)
	}

	closeParams := repository.CloseTradeParams{
		TradeID:     trade.ID,
		Status:      models.TradeStatusClosedTP,
		Detail:      "take profit touched",
		ExitPrice:   decimal.NewFromInt(115),
		RealizedPnL: decimal.NewFromInt(300),
		ClosedAt:    time.Now().UTC(),
	}
	closed, err := store.CloseTrade(ctx, closeParams)
	if err != nil || !closed {
		t.Fatalf("close: ok=%v err=%v", closed, err)
	}
	closed, err = store.CloseTrade(ctx, closeParams)
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if closed {
		t.Fatalf("a closed trade must not close twice")
	}
}
