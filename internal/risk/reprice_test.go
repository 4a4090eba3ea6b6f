package risk

import (
	"testing"

	"github.com/shopspring/decimal"

	"propdesk/internal/config"
	"propdesk/internal/models"
	"propdesk/internal/quote"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func buySignal(t *testing.T, entry, sl, tp string) models.Signal {
	t.Helper()
	return models.Signal{
		Symbol:     "BTCUSDT",
		Side:       models.SideBuy,
		AssetClass: models.AssetClassCrypto,
		EntryPrice: dec(t, entry),
		StopLoss:   dec(t, sl),
		TakeProfit: dec(t, tp),
	}
}

func quoteAt(t *testing.T, bid, ask string) quote.Quote {
	t.Helper()
	return quote.Quote{Symbol: "BTCUSDT", Bid: dec(t, bid), Ask: dec(t, ask)}
}

func TestReprice_BuyUsesCurrentAskNotSignalEntry(t *testing.T) {
	// Signal quoted 100/95/115 (rr 3.0), market has moved to 101: risk
	// becomes 6, reward 14, rr ~2.33.
	sig := buySignal(t, "100", "95", "115")
	ev := Reprice(sig, quoteAt(t, "100.9", "101"), dec(t, "2.0"))
	if !ev.Accepted {
		t.Fatalf("rejected: %s", ev.RejectReason)
	}
	if ev.Risk.Cmp(dec(t, "6")) != 0 {
		t.Fatalf("risk=%s want 6", ev.Risk.String())
	}
	if ev.Reward.Cmp(dec(t, "14")) != 0 {
		t.Fatalf("reward=%s want 14", ev.Reward.String())
	}
	if ev.RR.StringFixed(2) != "2.33" {
		t.Fatalf("rr=%s want 2.33", ev.RR.StringFixed(2))
	}
}

func TestReprice_ExactlyAtThresholdAccepted(t *testing.T) {
	// risk 5, reward 10 at a current ask of 100: rr exactly 2.0.
	sig := buySignal(t, "100", "95", "110")
	ev := Reprice(sig, quoteAt(t, "99.9", "100"), dec(t, "2.0"))
	if !ev.Accepted {
		t.Fatalf("rr exactly at minimum must be accepted, got %s", ev.RejectReason)
	}
}

func TestReprice_JustBelowThresholdRejected(t *testing.T) {
	// risk 100, reward 199: rr 1.99 against a 2.0 minimum.
	sig := buySignal(t, "10000", "9900", "10199")
	ev := Reprice(sig, quoteAt(t, "9999", "10000"), dec(t, "2.0"))
	if ev.Accepted {
		t.Fatalf("rr=%s accepted, want rejection", ev.RR.String())
	}
	if ev.RejectReason == "" {
		t.Fatalf("rejection must carry a reason")
	}
}

func TestReprice_SellSide(t *testing.T) {
	sig := models.Signal{
		Symbol:     "ETHUSDT",
		Side:       models.SideSell,
		AssetClass: models.AssetClassCrypto,
		EntryPrice: dec(t, "2000"),
		StopLoss:   dec(t, "2050"),
		TakeProfit: dec(t, "1880"),
	}
	// Sell hits the bid at 1990: risk = 2050-1990 = 60, reward = 1990-1880 = 110.
	ev := Reprice(sig, quoteAt(t, "1990", "1991"), dec(t, "1.5"))
	if !ev.Accepted {
		t.Fatalf("rejected: %s", ev.RejectReason)
	}
	if ev.Risk.Cmp(dec(t, "60")) != 0 || ev.Reward.Cmp(dec(t, "110")) != 0 {
		t.Fatalf("risk=%s reward=%s want 60/110", ev.Risk.String(), ev.Reward.String())
	}
}

func TestReprice_NonPositiveRiskRejected(t *testing.T) {
	// Price already fell through the stop: current ask 94 < stop 95.
	sig := buySignal(t, "100", "95", "115")
	ev := Reprice(sig, quoteAt(t, "93.9", "94"), dec(t, "2.0"))
	if ev.Accepted {
		t.Fatalf("non-positive risk must be rejected")
	}
	if !ev.RR.IsZero() {
		t.Fatalf("rr must stay undefined (zero) when risk <= 0, got %s", ev.RR.String())
	}
}

func TestMinRRFor_PerAssetClassAndFallback(t *testing.T) {
	cfg := config.RiskConfig{MinRRByAssetClass: map[string]float64{
		models.AssetClassCrypto: 2.0,
		models.AssetClassGoldFX: 2.5,
	}}
	if got := MinRRFor(cfg, models.AssetClassGoldFX); got.Cmp(dec(t, "2.5")) != 0 {
		t.Fatalf("gold_fx min=%s want 2.5", got.String())
	}
	if got := MinRRFor(cfg, models.AssetClassCrypto); got.Cmp(dec(t, "2")) != 0 {
		t.Fatalf("crypto min=%s want 2", got.String())
	}
	// Unknown class falls back to the strictest configured minimum.
	if got := MinRRFor(cfg, "equities"); got.Cmp(dec(t, "2.5")) != 0 {
		t.Fatalf("fallback min=%s want 2.5", got.String())
	}
}
