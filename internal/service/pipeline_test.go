package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"propdesk/internal/ingest"
	"propdesk/internal/models"
)

// fakeSource replays a scripted batch of raw messages once.
type fakeSource struct {
	name    string
	batch   []ingest.RawMessage
	drained bool
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Poll(ctx context.Context) ([]ingest.RawMessage, error) {
	if f.drained {
		return nil, nil
	}
	f.drained = true
	return f.batch, nil
}

func newTestPipeline(t *testing.T, repo *stubRepo, fb *fakeBroker, fq *fakeQuoter, sources ...ingest.Source) *Pipeline {
	t.Helper()
	gate := newTestGate(t, repo)
	settings := &SettingsService{Repo: repo}
	settings.Base.Risk = testRiskConfig()
	settings.Base.Trailing = testTrailingConfig()
	return &Pipeline{
		Repo:       repo,
		Sources:    sources,
		Normalizer: &ingest.Normalizer{Repo: repo},
		Quotes:     fq,
		Gate:       gate,
		Executor:   &Executor{Repo: repo, Broker: fb, Gate: gate},
		Settings:   settings,
		Locks:      NewSymbolLocks(),
		Interval:   time.Minute,
	}
}

func TestPipeline_SignalToTrade(t *testing.T) {
	repo := newStubRepo()
	fb := newFakeBroker("101")
	fq := newFakeQuoter()
	fq.set("BTCUSDT", "100.9", "101")

	src := &fakeSource{name: "crypto-vip", batch: []ingest.RawMessage{{
		Channel:    "crypto-vip",
		MessageID:  42,
		ReceivedAt: time.Now().UTC(),
		Text:       "BTCUSDT Buy\nEntry: 100\nTP: 115\nSL: 95",
	}}}
	p := newTestPipeline(t, repo, fb, fq, src)

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	// At the ask of 101: risk 6, reward 14, rr 2.33 passes the 2.0 minimum;
	// 2% of 10000 over a 5.94% stop sizes to ~3366.67.
	open, _ := repo.ListOpenTrades(context.Background())
	if len(open) != 1 {
		t.Fatalf("expected 1 open trade, got %d", len(open))
	}
	trade := open[0]
	if !trade.EntryPrice.Equal(decimal.RequireFromString("101")) {
		t.Fatalf("entry = %s, want the fill at 101", trade.EntryPrice.String())
	}
	wantSize := decimal.RequireFromString("3366.67")
	if trade.PositionSize.Sub(wantSize).Abs().GreaterThan(decimal.RequireFromString("0.01")) {
		t.Fatalf("size = %s, want ~%s", trade.PositionSize.StringFixed(2), wantSize.String())
	}
	sigs, _ := repo.ListSignalsByStatus(context.Background(), models.SignalStatusExecuted, 10)
	if len(sigs) != 1 {
		t.Fatalf("signal must end executed")
	}
	if st, ok := repo.sources["crypto-vip"]; !ok || st.LastMessageID != 42 {
		t.Fatalf("watermark must advance to the processed message id")
	}
}

func TestPipeline_RedeliveryIsNoOp(t *testing.T) {
	repo := newStubRepo()
	fb := newFakeBroker("101")
	fq := newFakeQuoter()
	fq.set("BTCUSDT", "100.9", "101")

	msg := ingest.RawMessage{
		Channel:    "crypto-vip",
		MessageID:  42,
		ReceivedAt: time.Now().UTC(),
		Text:       "BTCUSDT Buy\nEntry: 100\nTP: 115\nSL: 95",
	}
	first := &fakeSource{name: "crypto-vip", batch: []ingest.RawMessage{msg}}
	second := &fakeSource{name: "crypto-vip", batch: []ingest.RawMessage{msg}}
	p := newTestPipeline(t, repo, fb, fq, first, second)

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if got := fb.submitCount(); got != 1 {
		t.Fatalf("redelivered message must not submit twice, got %d submits", got)
	}
	sigs, _ := repo.ListSignalsByStatus(context.Background(), models.SignalStatusExecuted, 10)
	if len(sigs) != 1 {
		t.Fatalf("exactly one signal row may exist, got %d", len(sigs))
	}
}

func TestPipeline_RejectsBelowMinimumRR(t *testing.T) {
	repo := newStubRepo()
	fb := newFakeBroker("110")
	fq := newFakeQuoter()
	// Price ran to 110 before evaluation: risk 15, reward 5, rr 0.33.
	fq.set("BTCUSDT", "109.9", "110")

	src := &fakeSource{name: "crypto-vip", batch: []ingest.RawMessage{{
		Channel:    "crypto-vip",
		MessageID:  7,
		ReceivedAt: time.Now().UTC(),
		Text:       "BTCUSDT Buy\nEntry: 100\nTP: 115\nSL: 95",
	}}}
	p := newTestPipeline(t, repo, fb, fq, src)

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if fb.submitCount() != 0 {
		t.Fatalf("rejected signal must never reach the broker")
	}
	sigs, _ := repo.ListSignalsByStatus(context.Background(), models.SignalStatusRejectedRR, 10)
	if len(sigs) != 1 {
		t.Fatalf("signal must end rejected_rr")
	}
	if !strings.Contains(sigs[0].StatusReason, "below minimum") {
		t.Fatalf("reason must explain the ratio, got %q", sigs[0].StatusReason)
	}
}

func TestPipeline_HaltedAccountBlocksEntry(t *testing.T) {
	repo := newStubRepo()
	fb := newFakeBroker("101")
	fq := newFakeQuoter()
	fq.set("BTCUSDT", "100.9", "101")

	src := &fakeSource{name: "crypto-vip", batch: []ingest.RawMessage{{
		Channel:    "crypto-vip",
		MessageID:  8,
		ReceivedAt: time.Now().UTC(),
		Text:       "BTCUSDT Buy\nEntry: 100\nTP: 115\nSL: 95",
	}}}
	p := newTestPipeline(t, repo, fb, fq, src)

	// Breach the daily loss limit before the cycle runs.
	if _, err := p.Gate.ApplyClose(context.Background(), nil, decimal.RequireFromString("-500")); err != nil {
		t.Fatalf("apply close: %v", err)
	}

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if fb.submitCount() != 0 {
		t.Fatalf("halted account must not trade")
	}
	sigs, _ := repo.ListSignalsByStatus(context.Background(), models.SignalStatusBlockedCompliance, 10)
	if len(sigs) != 1 {
		t.Fatalf("signal must end blocked_compliance")
	}
}

func TestPipeline_NoQuoteStaysPending(t *testing.T) {
	repo := newStubRepo()
	fb := newFakeBroker("101")
	fq := newFakeQuoter() // no quotes

	src := &fakeSource{name: "crypto-vip", batch: []ingest.RawMessage{{
		Channel:    "crypto-vip",
		MessageID:  9,
		ReceivedAt: time.Now().UTC(),
		Text:       "BTCUSDT Buy\nEntry: 100\nTP: 115\nSL: 95",
	}}}
	p := newTestPipeline(t, repo, fb, fq, src)

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	sigs, _ := repo.ListSignalsByStatus(context.Background(), models.SignalStatusPending, 10)
	if len(sigs) != 1 {
		t.Fatalf("signal without a quote must stay pending for the next cycle")
	}
}

func TestPipeline_AutoTradingOffLeavesBacklog(t *testing.T) {
	repo := newStubRepo()
	fb := newFakeBroker("101")
	fq := newFakeQuoter()
	fq.set("BTCUSDT", "100.9", "101")

	src := &fakeSource{name: "crypto-vip", batch: []ingest.RawMessage{{
		Channel:    "crypto-vip",
		MessageID:  10,
		ReceivedAt: time.Now().UTC(),
		Text:       "BTCUSDT Buy\nEntry: 100\nTP: 115\nSL: 95",
	}}}
	p := newTestPipeline(t, repo, fb, fq, src)
	if err := p.Settings.SetEnabled(context.Background(), SettingAutoTrading, false); err != nil {
		t.Fatalf("set enabled: %v", err)
	}

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	// Intake still happens; evaluation does not.
	sigs, _ := repo.ListSignalsByStatus(context.Background(), models.SignalStatusPending, 10)
	if len(sigs) != 1 {
		t.Fatalf("intake must still record the signal, got %d pending", len(sigs))
	}
	if fb.submitCount() != 0 {
		t.Fatalf("no submits while auto trading is off")
	}
}

func TestPipeline_ChatterIsDropped(t *testing.T) {
	repo := newStubRepo()
	fb := newFakeBroker("101")
	fq := newFakeQuoter()

	src := &fakeSource{name: "crypto-vip", batch: []ingest.RawMessage{{
		Channel:    "crypto-vip",
		MessageID:  11,
		ReceivedAt: time.Now().UTC(),
		Text:       "gm everyone, big moves today",
	}}}
	p := newTestPipeline(t, repo, fb, fq, src)

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	sigs, _ := repo.ListSignalsByStatus(context.Background(), models.SignalStatusPending, 10)
	if len(sigs) != 0 {
		t.Fatalf("chatter must not create signal rows")
	}
	// The watermark still advances past unparseable messages.
	if st, ok := repo.sources["crypto-vip"]; !ok || st.LastMessageID != 11 {
		t.Fatalf("watermark must advance past chatter")
	}
}
