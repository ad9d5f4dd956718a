package indicator

import (
	"math"
	"testing"
	"time"

	"tickwatch/pkg/model"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	out := SMA(values, 3)

	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Error("expected NaN during warm-up")
	}
	expected := []float64{2, 3, 4}
	for i, want := range expected {
		if !almostEqual(out[i+2], want, 1e-9) {
			t.Errorf("SMA[%d] = %f, want %f", i+2, out[i+2], want)
		}
	}
}

func TestEMA(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	out := EMA(values, 2)

	if !math.IsNaN(out[0]) {
		t.Error("expected NaN before seed")
	}
	// Seed is SMA of the first two values, then alpha = 2/3.
	if !almostEqual(out[1], 1.5, 1e-9) {
		t.Errorf("EMA seed = %f, want 1.5", out[1])
	}
	if !almostEqual(out[2], 2.5, 1e-9) {
		t.Errorf("EMA[2] = %f, want 2.5", out[2])
	}
	if !almostEqual(out[3], 3.5, 1e-9) {
		t.Errorf("EMA[3] = %f, want 3.5", out[3])
	}
}

func TestRSIExtremes(t *testing.T) {
	rising := make([]float64, 30)
	falling := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)
		falling[i] = 100 - float64(i)
	}

	up := RSI(rising, 14)
	down := RSI(falling, 14)

	for i := 0; i < 14; i++ {
		if !math.IsNaN(up[i]) {
			t.Fatalf("RSI[%d] should be NaN during warm-up", i)
		}
	}
	if !almostEqual(up[len(up)-1], 100, 1e-9) {
		t.Errorf("RSI of strictly rising series = %f, want 100", up[len(up)-1])
	}
	if !almostEqual(down[len(down)-1], 0, 1e-9) {
		t.Errorf("RSI of strictly falling series = %f, want 0", down[len(down)-1])
	}
}

func TestMACDAlignment(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
	}
	line, signal := MACD(closes, 12, 26, 9)

	if !math.IsNaN(line[24]) {
		t.Error("MACD line should be NaN before the slow EMA is seeded")
	}
	if math.IsNaN(line[25]) {
		t.Error("MACD line should be defined once the slow EMA is seeded")
	}
	// Signal needs signalPeriod valid MACD values.
	if !math.IsNaN(signal[32]) {
		t.Error("MACD signal should be NaN before its own warm-up")
	}
	if math.IsNaN(signal[33]) {
		t.Error("MACD signal should be defined after warm-up")
	}
	// In a steady uptrend the MACD line is positive.
	if line[len(line)-1] <= 0 {
		t.Errorf("MACD of uptrend = %f, want > 0", line[len(line)-1])
	}
}

func TestStochBounds(t *testing.T) {
	n := 40
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + float64(i)
		highs[i] = base + 1
		lows[i] = base - 1
		closes[i] = base + 1 // close pinned at the top of the range
	}
	k, d := Stoch(highs, lows, closes, 14, 3, 3)

	last := len(k) - 1
	if math.IsNaN(k[last]) || math.IsNaN(d[last]) {
		t.Fatal("stochastic should be defined at the end of the series")
	}
	if k[last] < 90 || k[last] > 100 {
		t.Errorf("%%K with close at range top = %f, want near 100", k[last])
	}
	if d[last] < 0 || d[last] > 100 {
		t.Errorf("%%D out of bounds: %f", d[last])
	}
}

func TestATRConstantRange(t *testing.T) {
	n := 30
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = 101
		lows[i] = 100
		closes[i] = 100.5
	}
	atr := ATR(highs, lows, closes, 14)

	if !math.IsNaN(atr[13]) {
		t.Error("ATR should be NaN before warm-up")
	}
	if !almostEqual(atr[n-1], 1.0, 1e-9) {
		t.Errorf("ATR of constant 1-point range = %f, want 1.0", atr[n-1])
	}
}

func TestADXTrendStrength(t *testing.T) {
	n := 80
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + float64(i)*2
		highs[i] = base + 1
		lows[i] = base - 1
		closes[i] = base
	}
	adx := ADX(highs, lows, closes, 14)

	if !math.IsNaN(adx[26]) {
		t.Error("ADX should be NaN before 2*period-1")
	}
	last := adx[n-1]
	if math.IsNaN(last) {
		t.Fatal("ADX undefined at end of series")
	}
	if last < 25 {
		t.Errorf("ADX of persistent trend = %f, want strong (>= 25)", last)
	}
}

func TestRollingMeanSkipsNaNWindows(t *testing.T) {
	values := []float64{math.NaN(), 1, 2, 3, 4}
	out := RollingMean(values, 3)

	if !math.IsNaN(out[2]) {
		t.Error("window containing NaN should yield NaN")
	}
	if !almostEqual(out[4], 3, 1e-9) {
		t.Errorf("RollingMean[4] = %f, want 3", out[4])
	}
}

func TestFrameReadiness(t *testing.T) {
	bars := make([]model.Bar, 60)
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		base := 100 + math.Sin(float64(i)/5)*4
		bars[i] = model.Bar{
			Time:   start.AddDate(0, 0, i),
			Open:   base,
			High:   base + 1,
			Low:    base - 1,
			Close:  base + 0.3,
			Volume: 1000,
		}
	}

	f := Compute(bars, DefaultParams())
	if f.Len() != 60 {
		t.Fatalf("frame length = %d, want 60", f.Len())
	}
	// SMA(50) is the longest lookback: row 48 cannot be ready, row 59 must be.
	if f.Ready(48) {
		t.Error("row 48 should not be ready before the long SMA warm-up")
	}
	if !f.Ready(59) {
		t.Error("row 59 should be ready")
	}
	if f.Ready(-1) || f.Ready(60) {
		t.Error("out-of-range rows must never be ready")
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}

	p := DefaultParams()
	p.RSIPeriod = 0
	if err := p.Validate(); err == nil {
		t.Error("expected error for zero rsi_period")
	}

	p = DefaultParams()
	p.MACDFast = 30
	if err := p.Validate(); err == nil {
		t.Error("expected error when macd_fast >= macd_slow")
	}
}
