package indicator

import (
	"math"

	"tickwatch/pkg/model"
)

// Frame is a price series augmented with aligned indicator columns.
// Rows before an indicator's lookback hold NaN and must never reach the
// decision engine.
type Frame struct {
	Bars       []model.Bar
	RSI        []float64
	MACD       []float64
	MACDSignal []float64
	SMAShort   []float64
	SMALong    []float64
	StochK     []float64
	StochD     []float64
	ADX        []float64
}

// Compute derives every decision-engine column from bars. It is
// deterministic and side-effect-free.
func Compute(bars []model.Bar, p Params) *Frame {
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}

	f := &Frame{Bars: bars}
	f.RSI = RSI(closes, p.RSIPeriod)
	f.MACD, f.MACDSignal = MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	f.SMAShort = SMA(closes, p.SMAShort)
	f.SMALong = SMA(closes, p.SMALong)
	f.StochK, f.StochD = Stoch(highs, lows, closes, p.StochK, p.StochD, p.StochSmooth)
	f.ADX = ADX(highs, lows, closes, p.ADXPeriod)
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Bars)
}

// Ready reports whether every decision column is defined at row i.
func (f *Frame) Ready(i int) bool {
	if i < 0 || i >= len(f.Bars) {
		return false
	}
	for _, col := range [][]float64{
		f.RSI, f.MACD, f.MACDSignal, f.SMAShort, f.SMALong, f.StochK, f.StochD, f.ADX,
	} {
		if math.IsNaN(col[i]) {
			return false
		}
	}
	return true
}
