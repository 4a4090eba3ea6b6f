// Package metrics exposes the engine's Prometheus instrumentation. One set
// of collectors per process, registered on the default registry and served
// on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignalsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "propdesk",
		Name:      "signals_processed_total",
		Help:      "Signals that reached a terminal decision, by outcome.",
	}, []string{"outcome"})

	TradesOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "propdesk",
		Name:      "trades_opened_total",
		Help:      "Positions opened by the execution coordinator.",
	})

	TradesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "propdesk",
		Name:      "trades_closed_total",
		Help:      "Positions closed, by close status.",
	}, []string{"status"})

	CloseRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "propdesk",
		Name:      "close_retries_total",
		Help:      "Failed close instructions that will be retried next tick.",
	})

	Equity = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "propdesk",
		Name:      "account_equity_usd",
		Help:      "Current account equity.",
	})

	DailyPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "propdesk",
		Name:      "daily_pnl_usd",
		Help:      "Realized profit and loss since the last daily reset.",
	})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "propdesk",
		Name:      "open_positions",
		Help:      "Open trades under management.",
	})

	TradingAllowed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "propdesk",
		Name:      "trading_allowed",
		Help:      "1 when the compliance gate permits new entries, else 0.",
	})
)

// Signal outcome label values.
const (
	OutcomeExecuted   = "executed"
	OutcomeRejectedRR = "rejected_rr"
	OutcomeSizing     = "rejected_sizing"
	OutcomeCompliance = "blocked_compliance"
	OutcomeFailed     = "failed"
	OutcomeDuplicate  = "duplicate"
	OutcomeParseError = "parse_error"
)

// SetBool maps a flag onto a 0/1 gauge.
func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
