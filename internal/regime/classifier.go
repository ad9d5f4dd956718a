package regime

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"tickwatch/internal/indicator"
	"tickwatch/internal/metrics"
	"tickwatch/pkg/model"
)

const (
	// ATRPeriod is the lookback of the volatility measure.
	ATRPeriod = 14
	// ATRAvgPeriod is the window of the rolling ATR mean the latest ATR is
	// compared against.
	ATRAvgPeriod = 100
	// FetchDays is the history pulled per proxy; long enough for the
	// rolling mean to settle.
	FetchDays = 250
)

// ErrIndeterminate is returned when every proxy abstained. The caller must
// leave the existing thresholds untouched: stale thresholds are preferred
// over undefined ones.
var ErrIndeterminate = errors.New("regime: all proxies abstained")

// HistoricalSource fetches daily bars for a proxy symbol.
type HistoricalSource interface {
	DailyBars(ctx context.Context, symbol string, days int) ([]model.Bar, error)
}

// Classifier derives the market volatility regime from a set of proxy
// symbols and persists the resulting thresholds through the store.
type Classifier struct {
	source  HistoricalSource
	store   *Store
	proxies []string
	log     zerolog.Logger
}

// NewClassifier creates a classifier voting across the given proxies.
func NewClassifier(source HistoricalSource, store *Store, proxies []string, log zerolog.Logger) *Classifier {
	return &Classifier{source: source, store: store, proxies: proxies, log: log}
}

// Run fetches every proxy, majority-votes the regime, and atomically
// updates the active thresholds and status snapshot. A proxy whose data is
// unavailable or too short abstains; if all abstain, the configuration is
// left as-is and ErrIndeterminate is returned.
func (c *Classifier) Run(ctx context.Context) (model.Regime, error) {
	high, low := 0, 0
	for _, proxy := range c.proxies {
		bars, err := c.source.DailyBars(ctx, proxy, FetchDays)
		if err != nil {
			c.log.Warn().Err(err).Str("proxy", proxy).Msg("proxy data unavailable, abstaining")
			continue
		}
		r, ok := Vote(bars)
		if !ok {
			c.log.Warn().Str("proxy", proxy).Int("bars", len(bars)).Msg("proxy history too short, abstaining")
			continue
		}
		c.log.Info().Str("proxy", proxy).Str("vote", string(r)).Msg("proxy voted")
		if r == model.RegimeHighVolatility {
			high++
		} else {
			low++
		}
	}

	if high == 0 && low == 0 {
		metrics.Classifications.WithLabelValues("indeterminate").Inc()
		return "", ErrIndeterminate
	}

	// Strict majority required to declare HIGH; ties resolve to LOW.
	state := model.RegimeLowVolatility
	if high > low {
		state = model.RegimeHighVolatility
	}

	if err := c.store.Update(state, time.Now()); err != nil {
		return state, err
	}
	metrics.Classifications.WithLabelValues(string(state)).Inc()
	c.log.Info().
		Str("market_state", string(state)).
		Int("votes_high", high).
		Int("votes_low", low).
		Msg("regime updated")
	return state, nil
}

// Vote classifies one proxy series: HIGH iff the latest defined ATR is
// above its rolling mean. ok=false means the proxy abstains (not enough
// history for both columns).
func Vote(bars []model.Bar) (model.Regime, bool) {
	atr, mean := atrColumns(bars)
	for i := len(bars) - 1; i >= 0; i-- {
		if math.IsNaN(atr[i]) || math.IsNaN(mean[i]) {
			continue
		}
		if atr[i] > mean[i] {
			return model.RegimeHighVolatility, true
		}
		return model.RegimeLowVolatility, true
	}
	return "", false
}

// HistoricalStates derives a per-bar regime series for one proxy, for use
// as a per-day lookup by the backtester. Rows where ATR or its rolling
// mean is undefined carry the previous state forward; a leading gap
// defaults to LOW_VOLATILITY.
func HistoricalStates(bars []model.Bar) []model.Regime {
	atr, mean := atrColumns(bars)
	out := make([]model.Regime, len(bars))
	state := model.RegimeLowVolatility
	for i := range bars {
		if !math.IsNaN(atr[i]) && !math.IsNaN(mean[i]) {
			if atr[i] > mean[i] {
				state = model.RegimeHighVolatility
			} else {
				state = model.RegimeLowVolatility
			}
		}
		out[i] = state
	}
	return out
}

func atrColumns(bars []model.Bar) (atr, mean []float64) {
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}
	atr = indicator.ATR(highs, lows, closes, ATRPeriod)
	mean = indicator.RollingMean(atr, ATRAvgPeriod)
	return atr, mean
}
