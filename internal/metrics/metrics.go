package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BarsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickwatch_bars_processed_total",
			Help: "Total bar events consumed by the streaming detector.",
		},
		[]string{"symbol"},
	)

	SignalsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickwatch_signals_emitted_total",
			Help: "Total signals fired, by symbol and kind.",
		},
		[]string{"symbol", "kind"},
	)

	NoDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickwatch_no_decision_total",
			Help: "Bar evaluations that produced no decision (warming up or no rule matched).",
		},
		[]string{"symbol", "reason"},
	)

	SinkErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tickwatch_sink_errors_total",
			Help: "Signal sink write failures (non-fatal to the decision path).",
		},
	)

	Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickwatch_regime_classifications_total",
			Help: "Regime classification runs, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(BarsProcessed, SignalsEmitted, NoDecision, SinkErrors, Classifications)
}
