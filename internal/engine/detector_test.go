package engine

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tickwatch/internal/indicator"
	"tickwatch/pkg/model"
)

type staticThresholds struct{ th model.Thresholds }

func (s staticThresholds) Active() model.Thresholds { return s.th }

type memorySink struct {
	mu      sync.Mutex
	signals []model.Signal
}

func (m *memorySink) Record(_ context.Context, sig model.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, sig)
	return nil
}

// syntheticBars produces a deterministic wavy daily series.
func syntheticBars(n int) []model.Bar {
	bars := make([]model.Bar, n)
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		base := 100 + 10*math.Sin(float64(i)/7) + float64(i)*0.05
		bars[i] = model.Bar{
			Time: start.AddDate(0, 0, i), Open: base - 0.2, High: base + 1,
			Low: base - 1, Close: base, Volume: 5000,
		}
	}
	return bars
}

func TestDetectorCollectsBeforeMinBars(t *testing.T) {
	sink := &memorySink{}
	d := NewDetector(indicator.DefaultParams(), staticThresholds{lowVol}, zerolog.Nop(), sink)

	bars := syntheticBars(DefaultMinBars - 1)
	for _, b := range bars {
		if sig := d.OnBar(context.Background(), "FPT", b); sig != nil {
			t.Fatalf("signal fired during warm-up at %v", b.Time)
		}
	}
	if len(sink.signals) != 0 {
		t.Errorf("sink received %d signals during warm-up", len(sink.signals))
	}
}

func TestDetectorSymbolsIndependent(t *testing.T) {
	d := NewDetector(indicator.DefaultParams(), staticThresholds{lowVol}, zerolog.Nop())

	bars := syntheticBars(60)
	for _, b := range bars {
		d.OnBar(context.Background(), "FPT", b)
	}
	// A second symbol starts from scratch: its first bar is warm-up.
	if sig := d.OnBar(context.Background(), "MWG", bars[0]); sig != nil {
		t.Error("fresh symbol should be collecting data")
	}

	if got := d.state("FPT").buf.Len(); got != 60 {
		t.Errorf("FPT buffer len = %d, want 60", got)
	}
	if got := d.state("MWG").buf.Len(); got != 1 {
		t.Errorf("MWG buffer len = %d, want 1", got)
	}
}

func TestDetectorDeterministic(t *testing.T) {
	bars := syntheticBars(120)

	run := func() []model.Signal {
		sink := &memorySink{}
		d := NewDetector(indicator.DefaultParams(), staticThresholds{lowVol}, zerolog.Nop(), sink)
		for _, b := range bars {
			d.OnBar(context.Background(), "FPT", b)
		}
		return sink.signals
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("runs differ: %d vs %d signals", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("signal %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestDetectorConcurrentSymbols(t *testing.T) {
	d := NewDetector(indicator.DefaultParams(), staticThresholds{lowVol}, zerolog.Nop())
	bars := syntheticBars(80)
	symbols := []string{"FPT", "MWG", "VCB", "HPG"}

	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			for _, b := range bars {
				d.OnBar(context.Background(), sym, b)
			}
		}(sym)
	}
	wg.Wait()

	for _, sym := range symbols {
		if got := d.state(sym).buf.Len(); got != 80 {
			t.Errorf("%s buffer len = %d, want 80", sym, got)
		}
	}
}
