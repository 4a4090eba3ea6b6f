package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"propdesk/internal/models"
	"propdesk/internal/repository"
)

// insertOnlyRepo records InsertSignalIgnoreDuplicate calls and fakes the
// unique index on (channel, source_message_id). The embedded interface
// panics on anything else the normalizer should never touch.
type insertOnlyRepo struct {
	repository.Repository
	seen map[string]struct{}
}

func (r *insertOnlyRepo) InsertSignalIgnoreDuplicate(ctx context.Context, item *models.Signal) (bool, error) {
	if r.seen == nil {
		r.seen = make(map[string]struct{})
	}
	key := fmt.Sprintf("%s/%d", item.Channel, item.SourceMessageID)
	if _, ok := r.seen[key]; ok {
		return false, nil
	}
	r.seen[key] = struct{}{}
	return true, nil
}

func testMessage(id int64) RawMessage {
	return RawMessage{
		Channel:    "smrt_signals",
		MessageID:  id,
		ReceivedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Text:       "Buy BTCUSDT\nEntry: 45000\nTP: 47000\nSL: 43000",
	}
}

func TestNormalize_CreatesPendingSignal(t *testing.T) {
	n := &Normalizer{Repo: &insertOnlyRepo{}}
	parsed := &ParsedSignal{
		Format:     "side_first",
		Symbol:     "BTCUSDT",
		Side:       models.SideBuy,
		EntryPrice: dec(t, "45000"),
		StopLoss:   dec(t, "43000"),
		TakeProfit: dec(t, "47000"),
	}
	sig, created, err := n.Normalize(context.Background(), testMessage(101), parsed)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !created {
		t.Fatalf("created=false want true")
	}
	if sig.Status != models.SignalStatusPending {
		t.Fatalf("status=%q want pending", sig.Status)
	}
	if sig.AssetClass != models.AssetClassCrypto {
		t.Fatalf("asset_class=%q want crypto", sig.AssetClass)
	}
	if sig.Channel != "smrt_signals" || sig.SourceMessageID != 101 {
		t.Fatalf("identity=%q/%d", sig.Channel, sig.SourceMessageID)
	}
}

func TestNormalize_RedeliveryIsNoOp(t *testing.T) {
	repo := &insertOnlyRepo{}
	n := &Normalizer{Repo: repo}
	parsed := &ParsedSignal{
		Symbol:     "BTCUSDT",
		Side:       models.SideBuy,
		EntryPrice: dec(t, "45000"),
		StopLoss:   dec(t, "43000"),
		TakeProfit: dec(t, "47000"),
	}
	_, created, err := n.Normalize(context.Background(), testMessage(7), parsed)
	if err != nil || !created {
		t.Fatalf("first delivery: created=%v err=%v", created, err)
	}
	sig, created, err := n.Normalize(context.Background(), testMessage(7), parsed)
	if err != nil {
		t.Fatalf("redelivery err=%v", err)
	}
	if created || sig != nil {
		t.Fatalf("redelivery created=%v sig=%v want no-op", created, sig)
	}
}

func TestNormalize_DerivesGoldFXClass(t *testing.T) {
	n := &Normalizer{Repo: &insertOnlyRepo{}}
	parsed := &ParsedSignal{
		Symbol:     "XAUUSD",
		Side:       models.SideSell,
		EntryPrice: dec(t, "2015.5"),
		StopLoss:   dec(t, "2025"),
		TakeProfit: dec(t, "1995"),
	}
	sig, _, err := n.Normalize(context.Background(), testMessage(8), parsed)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sig.AssetClass != models.AssetClassGoldFX {
		t.Fatalf("asset_class=%q want gold_fx", sig.AssetClass)
	}
}

func TestNormalize_RejectsZeroStopDistance(t *testing.T) {
	n := &Normalizer{Repo: &insertOnlyRepo{}}
	parsed := &ParsedSignal{
		Symbol:     "BTCUSDT",
		Side:       models.SideBuy,
		EntryPrice: dec(t, "45000"),
		StopLoss:   dec(t, "45000"),
		TakeProfit: dec(t, "47000"),
	}
	_, _, err := n.Normalize(context.Background(), testMessage(9), parsed)
	if !errors.Is(err, ErrZeroStopDistance) {
		t.Fatalf("err=%v want ErrZeroStopDistance", err)
	}
}

func TestNormalize_RejectsNonPositivePrices(t *testing.T) {
	n := &Normalizer{Repo: &insertOnlyRepo{}}
	parsed := &ParsedSignal{
		Symbol:     "BTCUSDT",
		Side:       models.SideBuy,
		EntryPrice: dec(t, "45000"),
		StopLoss:   dec(t, "0"),
		TakeProfit: dec(t, "47000"),
	}
	_, _, err := n.Normalize(context.Background(), testMessage(10), parsed)
	if !errors.Is(err, ErrNonPositivePrice) {
		t.Fatalf("err=%v want ErrNonPositivePrice", err)
	}
}
