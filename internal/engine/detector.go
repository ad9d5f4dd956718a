package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"tickwatch/internal/indicator"
	"tickwatch/internal/metrics"
	"tickwatch/pkg/model"
)

const (
	// DefaultCapacity bounds the per-symbol rolling history.
	DefaultCapacity = 200
	// DefaultMinBars is the warm-up below which a symbol only collects data.
	DefaultMinBars = 50
)

// ThresholdSource supplies the active regime thresholds as an immutable
// snapshot per decision call.
type ThresholdSource interface {
	Active() model.Thresholds
}

// Sink receives fired signals. Implementations must not assume they can
// block the decision path; failures are reported and dropped.
type Sink interface {
	Record(ctx context.Context, sig model.Signal) error
}

// Detector drives the streaming path: one rolling buffer per symbol, and
// an append -> compute -> decide cycle per incoming bar. Buffers for
// distinct symbols are fully independent; events for the same symbol are
// serialized by a per-symbol lock.
type Detector struct {
	params   indicator.Params
	source   ThresholdSource
	sinks    []Sink
	capacity int
	minBars  int
	log      zerolog.Logger

	mu      sync.Mutex
	symbols map[string]*symbolState
}

type symbolState struct {
	mu  sync.Mutex
	buf *Buffer
}

// NewDetector creates a streaming detector.
func NewDetector(params indicator.Params, source ThresholdSource, log zerolog.Logger, sinks ...Sink) *Detector {
	return &Detector{
		params:   params,
		source:   source,
		sinks:    sinks,
		capacity: DefaultCapacity,
		minBars:  DefaultMinBars,
		log:      log,
		symbols:  make(map[string]*symbolState),
	}
}

// SetLimits overrides the buffer capacity and warm-up threshold. It must
// be called before the first bar arrives.
func (d *Detector) SetLimits(capacity, minBars int) {
	if capacity > 0 {
		d.capacity = capacity
	}
	if minBars > 0 {
		d.minBars = minBars
	}
}

func (d *Detector) state(symbol string) *symbolState {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.symbols[symbol]
	if !ok {
		st = &symbolState{buf: NewBuffer(d.capacity)}
		d.symbols[symbol] = st
	}
	return st
}

// OnBar consumes one bar event for symbol. It returns the fired signal, or
// nil when the symbol is still warming up or no rule matched. Sink and
// notification failures never propagate: signal generation must not stall
// on its collaborators.
func (d *Detector) OnBar(ctx context.Context, symbol string, bar model.Bar) *model.Signal {
	metrics.BarsProcessed.WithLabelValues(symbol).Inc()

	st := d.state(symbol)
	st.mu.Lock()
	st.buf.Append(bar)
	if st.buf.Len() < d.minBars {
		n := st.buf.Len()
		st.mu.Unlock()
		metrics.NoDecision.WithLabelValues(symbol, "collecting").Inc()
		d.log.Debug().Str("symbol", symbol).Int("bars", n).Msg("collecting history")
		return nil
	}
	bars := st.buf.Snapshot()
	st.mu.Unlock()

	frame := indicator.Compute(bars, d.params)
	verdict := Evaluate(frame, d.source.Active())

	if !verdict.Ready {
		metrics.NoDecision.WithLabelValues(symbol, "warming_up").Inc()
		d.log.Debug().Str("symbol", symbol).Msg("indicators not ready")
		return nil
	}
	if verdict.Kind == model.SignalNone {
		metrics.NoDecision.WithLabelValues(symbol, "no_match").Inc()
		return nil
	}

	sig := model.Signal{
		Time:   bar.Time,
		Symbol: symbol,
		Kind:   verdict.Kind,
		Price:  bar.Close,
		Reason: verdict.Reason,
	}
	metrics.SignalsEmitted.WithLabelValues(symbol, string(sig.Kind)).Inc()
	d.log.Info().
		Str("symbol", symbol).
		Str("signal", string(sig.Kind)).
		Float64("price", sig.Price).
		Str("reason", sig.Reason).
		Msg("signal fired")

	for _, s := range d.sinks {
		if err := s.Record(ctx, sig); err != nil {
			metrics.SinkErrors.Inc()
			d.log.Error().Err(err).Str("symbol", symbol).Msg("sink write failed")
		}
	}
	return &sig
}
