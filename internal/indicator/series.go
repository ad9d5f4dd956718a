package indicator

import "math"

// The series functions below all return a slice aligned with the input:
// out[i] belongs to the bar at index i, and positions without enough
// history hold NaN. Callers must treat NaN as "not ready" and skip the
// row, never substitute a value.

// SMA returns the simple moving average over period.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period < 1 || len(values) < period {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA returns the exponential moving average over period, seeded with the
// simple average of the first period values.
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period < 1 || len(values) < period {
		return out
	}
	var seed float64
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)
	out[period-1] = seed
	alpha := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI returns the Wilder-smoothed relative strength index of closes.
func RSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period < 1 || len(closes) < period+1 {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD returns the MACD line (EMA fast minus EMA slow) and its signal line
// (EMA of the MACD line over signalPeriod).
func MACD(closes []float64, fast, slow, signalPeriod int) (line, signal []float64) {
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	line = nanSlice(len(closes))
	for i := range closes {
		if !math.IsNaN(emaFast[i]) && !math.IsNaN(emaSlow[i]) {
			line[i] = emaFast[i] - emaSlow[i]
		}
	}
	signal = emaOverValid(line, signalPeriod)
	return line, signal
}

// emaOverValid computes an EMA over the valid (non-NaN) tail of a series,
// keeping the output aligned with the input.
func emaOverValid(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	start := -1
	for i, v := range values {
		if !math.IsNaN(v) {
			start = i
			break
		}
	}
	if start < 0 || len(values)-start < period {
		return out
	}
	tail := EMA(values[start:], period)
	copy(out[start:], tail)
	return out
}

// Stoch returns the smoothed stochastic oscillator. Raw %K compares the
// close to the high/low range over kPeriod; %K is the SMA of raw %K over
// smooth; %D is the SMA of %K over dPeriod.
func Stoch(highs, lows, closes []float64, kPeriod, dPeriod, smooth int) (k, d []float64) {
	raw := nanSlice(len(closes))
	for i := kPeriod - 1; i < len(closes); i++ {
		hi, lo := highs[i], lows[i]
		for j := i - kPeriod + 1; j < i; j++ {
			hi = math.Max(hi, highs[j])
			lo = math.Min(lo, lows[j])
		}
		if hi == lo {
			raw[i] = 50
			continue
		}
		raw[i] = 100 * (closes[i] - lo) / (hi - lo)
	}
	k = smaOverValid(raw, smooth)
	d = smaOverValid(k, dPeriod)
	return k, d
}

func smaOverValid(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	start := -1
	for i, v := range values {
		if !math.IsNaN(v) {
			start = i
			break
		}
	}
	if start < 0 || len(values)-start < period {
		return out
	}
	tail := SMA(values[start:], period)
	copy(out[start:], tail)
	return out
}

// trueRanges returns the true range series; index 0 is the plain high-low
// range since there is no previous close.
func trueRanges(highs, lows, closes []float64) []float64 {
	tr := make([]float64, len(closes))
	for i := range closes {
		if i == 0 {
			tr[i] = highs[i] - lows[i]
			continue
		}
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return tr
}

// ATR returns the Wilder-smoothed average true range.
func ATR(highs, lows, closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period < 1 || len(closes) < period+1 {
		return out
	}
	tr := trueRanges(highs, lows, closes)
	var seed float64
	for i := 1; i <= period; i++ {
		seed += tr[i]
	}
	out[period] = seed / float64(period)
	for i := period + 1; i < len(closes); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// ADX returns the Wilder average directional index. Values are defined
// from index 2*period onward.
func ADX(highs, lows, closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period < 1 || len(closes) < 2*period+1 {
		return out
	}
	tr := trueRanges(highs, lows, closes)

	plusDM := make([]float64, len(closes))
	minusDM := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	// Wilder-smoothed running sums, seeded over the first period bars.
	var smTR, smPlus, smMinus float64
	for i := 1; i <= period; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}

	dx := nanSlice(len(closes))
	dx[period] = dxValue(smPlus, smMinus, smTR)
	for i := period + 1; i < len(closes); i++ {
		smTR = smTR - smTR/float64(period) + tr[i]
		smPlus = smPlus - smPlus/float64(period) + plusDM[i]
		smMinus = smMinus - smMinus/float64(period) + minusDM[i]
		dx[i] = dxValue(smPlus, smMinus, smTR)
	}

	// ADX is the Wilder average of DX, seeded with a simple mean.
	var seed float64
	for i := period; i < 2*period; i++ {
		seed += dx[i]
	}
	out[2*period-1] = seed / float64(period)
	for i := 2 * period; i < len(closes); i++ {
		out[i] = (out[i-1]*float64(period-1) + dx[i]) / float64(period)
	}
	return out
}

func dxValue(smPlus, smMinus, smTR float64) float64 {
	if smTR == 0 {
		return 0
	}
	plusDI := 100 * smPlus / smTR
	minusDI := 100 * smMinus / smTR
	sum := plusDI + minusDI
	if sum == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / sum
}

// RollingMean returns the rolling mean over window, skipping NaN inputs:
// a window containing any NaN yields NaN, matching dropna semantics.
func RollingMean(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window < 1 || len(values) < window {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		sum := 0.0
		ok := true
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				ok = false
				break
			}
			sum += values[j]
		}
		if ok {
			out[i] = sum / float64(window)
		}
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
