package ingest

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"propdesk/internal/models"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestParse_SymbolFirstWithChatter(t *testing.T) {
	msg := "BTCUSDT Buy\nLeverage: 10x\nEntry: 45,000\nTP: 47,000\nSL: 43,000"
	sig, err := Parse(msg)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sig.Symbol != "BTCUSDT" {
		t.Fatalf("symbol=%q want BTCUSDT", sig.Symbol)
	}
	if sig.Side != models.SideBuy {
		t.Fatalf("side=%q want Buy", sig.Side)
	}
	if !sig.EntryPrice.Equal(dec(t, "45000")) {
		t.Fatalf("entry=%s want 45000", sig.EntryPrice)
	}
	if !sig.TakeProfit.Equal(dec(t, "47000")) {
		t.Fatalf("tp=%s want 47000", sig.TakeProfit)
	}
	if !sig.StopLoss.Equal(dec(t, "43000")) {
		t.Fatalf("sl=%s want 43000", sig.StopLoss)
	}
}

func TestParse_SideFirstBlock(t *testing.T) {
	msg := "Sell XAUUSD\nEntry: 2015.50\nTP: 1995.00\nSL: 2025.00"
	sig, err := Parse(msg)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sig.Symbol != "XAUUSD" {
		t.Fatalf("symbol=%q want XAUUSD", sig.Symbol)
	}
	if sig.Side != models.SideSell {
		t.Fatalf("side=%q want Sell", sig.Side)
	}
	if !sig.EntryPrice.Equal(dec(t, "2015.5")) {
		t.Fatalf("entry=%s want 2015.5", sig.EntryPrice)
	}
}

func TestParse_SideFirstIndentedLines(t *testing.T) {
	msg := "Buy BTCUSDT\n    Entry: 45,000\n    TP: 47,000\n    SL: 43,000"
	sig, err := Parse(msg)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sig.Symbol != "BTCUSDT" || sig.Side != models.SideBuy {
		t.Fatalf("got %q %q", sig.Symbol, sig.Side)
	}
	if !sig.EntryPrice.Equal(dec(t, "45000")) {
		t.Fatalf("entry=%s want 45000", sig.EntryPrice)
	}
}

func TestParse_CompactPipe(t *testing.T) {
	msg := "Long $ETH @ 3,200 | TP: 3,500 | SL: 3,050"
	sig, err := Parse(msg)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sig.Symbol != "ETH" {
		t.Fatalf("symbol=%q want ETH", sig.Symbol)
	}
	if sig.Side != models.SideBuy {
		t.Fatalf("side=%q want Buy (long normalizes to Buy)", sig.Side)
	}
	if !sig.EntryPrice.Equal(dec(t, "3200")) || !sig.TakeProfit.Equal(dec(t, "3500")) || !sig.StopLoss.Equal(dec(t, "3050")) {
		t.Fatalf("prices=%s/%s/%s", sig.EntryPrice, sig.TakeProfit, sig.StopLoss)
	}
}

func TestParse_LongLabels(t *testing.T) {
	msg := "Buy EURUSD\nEntry Price: 1.0850\nTake Profit: 1.0950\nStop Loss: 1.0800"
	sig, err := Parse(msg)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sig.Symbol != "EURUSD" {
		t.Fatalf("symbol=%q want EURUSD", sig.Symbol)
	}
	if !sig.EntryPrice.Equal(dec(t, "1.085")) {
		t.Fatalf("entry=%s want 1.085", sig.EntryPrice)
	}
	if !sig.StopLoss.Equal(dec(t, "1.08")) {
		t.Fatalf("sl=%s want 1.08", sig.StopLoss)
	}
}

func TestParse_ShortNormalizesToSell(t *testing.T) {
	msg := "Short SOLUSDT\nEntry: 150\nTP: 120\nSL: 165"
	sig, err := Parse(msg)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sig.Side != models.SideSell {
		t.Fatalf("side=%q want Sell", sig.Side)
	}
}

func TestParse_LowercaseMessage(t *testing.T) {
	msg := "buy btcusdt\nentry: 45000\ntp: 47000\nsl: 43000"
	sig, err := Parse(msg)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sig.Symbol != "BTCUSDT" {
		t.Fatalf("symbol=%q want BTCUSDT (upper-cased)", sig.Symbol)
	}
}

func TestParse_NoMatch(t *testing.T) {
	for _, msg := range []string{
		"",
		"gm everyone, big day ahead",
		"Entry: 45000", // labels without a side/symbol head
	} {
		if _, err := Parse(msg); !errors.Is(err, ErrNoMatch) {
			t.Fatalf("msg=%q err=%v want ErrNoMatch", msg, err)
		}
	}
}
