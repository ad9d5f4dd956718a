package model

import "time"

// Bar represents a single OHLCV bar for one sampling interval.
// Bars are immutable once recorded and ordered ascending by time.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// SignalKind is one of the discrete outcomes of the rule matrix.
type SignalKind string

const (
	SignalNone           SignalKind = ""
	SignalNewBuy         SignalKind = "new buy"
	SignalTakeProfitSell SignalKind = "take-profit sell"
	SignalRiskPullback   SignalKind = "risk warning (pullback likely)"
	SignalRiskBottomFish SignalKind = "risk warning (dangerous bottom-fish)"
)

// Signal is one fired signal for one symbol at one bar. Signals are
// emitted at most once per bar per symbol and never retracted.
type Signal struct {
	Time   time.Time  `json:"time"`
	Symbol string     `json:"symbol"`
	Kind   SignalKind `json:"kind"`
	Price  float64    `json:"price"`
	Reason string     `json:"reason"`
}

// Regime is the classified market volatility state.
type Regime string

const (
	RegimeLowVolatility  Regime = "LOW_VOLATILITY"
	RegimeHighVolatility Regime = "HIGH_VOLATILITY"
)

// Thresholds is the regime-dependent parameter triple consumed by the
// decision engine. Only these fields change at runtime; the period
// parameters are static configuration.
type Thresholds struct {
	RSIOverbought float64 `json:"rsi_overbought" yaml:"rsi_overbought"`
	RSIOversold   float64 `json:"rsi_oversold" yaml:"rsi_oversold"`
	ADXThreshold  float64 `json:"adx_threshold" yaml:"adx_threshold"`
}

// ThresholdsFor returns the fixed threshold set for a regime.
func ThresholdsFor(r Regime) Thresholds {
	if r == RegimeHighVolatility {
		return Thresholds{RSIOverbought: 75, RSIOversold: 25, ADXThreshold: 28}
	}
	return Thresholds{RSIOverbought: 70, RSIOversold: 30, ADXThreshold: 22}
}

// SystemStatus is the snapshot written once per classification cycle.
// It is read-only to every consumer except the regime classifier.
type SystemStatus struct {
	LastUpdated      time.Time  `json:"last_updated"`
	MarketState      Regime     `json:"market_state"`
	ActiveThresholds Thresholds `json:"active_thresholds"`
}

// Trade is one completed round trip produced by the backtester.
type Trade struct {
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitTime   time.Time `json:"exit_time"`
	ExitPrice  float64   `json:"exit_price"`
	PctReturn  float64   `json:"pct_return"`
}

// EquityPoint is one point of the cumulative multiplicative return curve.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}
