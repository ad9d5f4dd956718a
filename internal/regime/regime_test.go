package regime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tickwatch/pkg/model"
)

// flatBars returns n bars with a constant 1-point true range.
func flatBars(n int) []model.Bar {
	bars := make([]model.Bar, n)
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = model.Bar{
			Time: start.AddDate(0, 0, i),
			Open: 100, High: 100.5, Low: 99.5, Close: 100,
			Volume: 1000,
		}
	}
	return bars
}

// widen stretches the daily range of the last k bars so the latest ATR
// rises above its long rolling mean.
func widen(bars []model.Bar, k int) []model.Bar {
	out := make([]model.Bar, len(bars))
	copy(out, bars)
	for i := len(out) - k; i < len(out); i++ {
		out[i].High = 102
		out[i].Low = 98
	}
	return out
}

func TestVote(t *testing.T) {
	calm := flatBars(160)
	if r, ok := Vote(calm); !ok || r != model.RegimeLowVolatility {
		t.Errorf("constant-range series voted %v (ok=%v), want LOW_VOLATILITY", r, ok)
	}

	stormy := widen(calm, 20)
	if r, ok := Vote(stormy); !ok || r != model.RegimeHighVolatility {
		t.Errorf("widened-range series voted %v (ok=%v), want HIGH_VOLATILITY", r, ok)
	}

	if _, ok := Vote(flatBars(30)); ok {
		t.Error("short series must abstain")
	}
}

func TestHistoricalStates(t *testing.T) {
	bars := widen(flatBars(200), 30)
	states := HistoricalStates(bars)

	if len(states) != len(bars) {
		t.Fatalf("states length = %d, want %d", len(states), len(bars))
	}
	// Leading rows have no ATR mean yet and default to LOW.
	if states[0] != model.RegimeLowVolatility {
		t.Errorf("leading state = %v, want LOW_VOLATILITY", states[0])
	}
	if states[len(states)-1] != model.RegimeHighVolatility {
		t.Errorf("final state = %v, want HIGH_VOLATILITY", states[len(states)-1])
	}
}

type fakeSource struct {
	data map[string][]model.Bar
}

func (f *fakeSource) DailyBars(_ context.Context, symbol string, _ int) ([]model.Bar, error) {
	bars, ok := f.data[symbol]
	if !ok {
		return nil, errors.New("no data")
	}
	return bars, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "system_status.json"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestClassifierMajorityVote(t *testing.T) {
	calm := flatBars(160)
	stormy := widen(calm, 20)

	cases := []struct {
		name    string
		data    map[string][]model.Bar
		proxies []string
		want    model.Regime
	}{
		{
			name:    "unanimous high",
			data:    map[string][]model.Bar{"A": stormy, "B": stormy, "C": stormy},
			proxies: []string{"A", "B", "C"},
			want:    model.RegimeHighVolatility,
		},
		{
			name:    "unanimous low",
			data:    map[string][]model.Bar{"A": calm, "B": calm, "C": calm},
			proxies: []string{"A", "B", "C"},
			want:    model.RegimeLowVolatility,
		},
		{
			name:    "tie resolves low",
			data:    map[string][]model.Bar{"A": stormy, "B": calm},
			proxies: []string{"A", "B"},
			want:    model.RegimeLowVolatility,
		},
		{
			name:    "abstaining proxy ignored",
			data:    map[string][]model.Bar{"A": stormy},
			proxies: []string{"A", "MISSING"},
			want:    model.RegimeHighVolatility,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newTestStore(t)
			c := NewClassifier(&fakeSource{data: tc.data}, store, tc.proxies, zerolog.Nop())
			got, err := c.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got != tc.want {
				t.Errorf("regime = %v, want %v", got, tc.want)
			}
			if th := store.Active(); th != model.ThresholdsFor(tc.want) {
				t.Errorf("active thresholds = %+v, want %+v", th, model.ThresholdsFor(tc.want))
			}
		})
	}
}

func TestClassifierAllAbstain(t *testing.T) {
	store := newTestStore(t)
	// Seed the store so we can see it is left untouched.
	if err := store.Update(model.RegimeHighVolatility, time.Now()); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	c := NewClassifier(&fakeSource{data: nil}, store, []string{"X", "Y"}, zerolog.Nop())
	if _, err := c.Run(context.Background()); !errors.Is(err, ErrIndeterminate) {
		t.Fatalf("err = %v, want ErrIndeterminate", err)
	}
	if th := store.Active(); th != model.ThresholdsFor(model.RegimeHighVolatility) {
		t.Errorf("thresholds changed on indeterminate run: %+v", th)
	}
}

func TestStorePersistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system_status.json")

	s, err := NewStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	// Defaults apply before any classification.
	if th := s.Active(); th != model.ThresholdsFor(model.RegimeLowVolatility) {
		t.Errorf("default thresholds = %+v", th)
	}
	if _, ok := s.Status(); ok {
		t.Error("status should be absent before the first update")
	}

	if err := s.Update(model.RegimeHighVolatility, time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("status file not written: %v", err)
	}

	// A fresh store picks the snapshot back up.
	s2, err := NewStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	st, ok := s2.Status()
	if !ok {
		t.Fatal("expected persisted status")
	}
	if st.MarketState != model.RegimeHighVolatility {
		t.Errorf("market state = %v, want HIGH_VOLATILITY", st.MarketState)
	}
	if st.ActiveThresholds != model.ThresholdsFor(model.RegimeHighVolatility) {
		t.Errorf("thresholds = %+v", st.ActiveThresholds)
	}
}
