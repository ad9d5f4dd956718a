package engine

import (
	"fmt"

	"tickwatch/internal/indicator"
	"tickwatch/pkg/model"
)

// Verdict is the outcome of one rule-matrix evaluation. Ready=false means
// the row lacked indicator history ("not enough data"); Kind=SignalNone
// with Ready=true means the matrix matched nothing ("no signal"). Both are
// non-failure outcomes but are semantically distinct.
type Verdict struct {
	Kind   model.SignalKind
	Reason string
	Ready  bool
}

// Evaluate applies the rule matrix to the last row of the frame.
func Evaluate(f *indicator.Frame, th model.Thresholds) Verdict {
	return EvaluateAt(f, f.Len()-1, th)
}

// EvaluateAt applies the rule matrix to row i, using row i-1 for crossing
// checks. The matrix is evaluated in strict priority order; the first
// matching rule wins and at most one signal is produced per call.
func EvaluateAt(f *indicator.Frame, i int, th model.Thresholds) Verdict {
	if i < 1 || !f.Ready(i) {
		return Verdict{}
	}

	cur := i
	prev := i - 1
	close := f.Bars[cur].Close
	prevClose := f.Bars[prev].Close

	// Momentum: oversold RSI, or a stochastic cross in the extreme zone.
	// NaN values in the previous row make every comparison false, so a
	// half-warm cross simply cannot fire.
	stochCrossUp := crossAbove(f.StochK[cur], f.StochD[cur], f.StochK[prev], f.StochD[prev])
	stochCrossDown := crossAbove(f.StochD[cur], f.StochK[cur], f.StochD[prev], f.StochK[prev])

	momentumBuy := f.RSI[cur] < th.RSIOversold || (stochCrossUp && f.StochK[cur] < 20)
	momentumSell := f.RSI[cur] > th.RSIOverbought || (stochCrossDown && f.StochK[cur] > 80)

	// Trend: any one of MACD cross, close crossing the short SMA, or close
	// crossing the long SMA.
	macdCrossUp := crossAbove(f.MACD[cur], f.MACDSignal[cur], f.MACD[prev], f.MACDSignal[prev])
	macdCrossDown := crossAbove(f.MACDSignal[cur], f.MACD[cur], f.MACDSignal[prev], f.MACD[prev])

	trendBuy := macdCrossUp ||
		crossAbove(close, f.SMAShort[cur], prevClose, f.SMAShort[prev]) ||
		crossAbove(close, f.SMALong[cur], prevClose, f.SMALong[prev])
	trendSell := macdCrossDown ||
		crossAbove(f.SMAShort[cur], close, f.SMAShort[prev], prevClose) ||
		crossAbove(f.SMALong[cur], close, f.SMALong[prev], prevClose)

	// Trend strength for the risk-warning rules. ADX measures strength of
	// either direction, so its inequality is NOT mirrored on the down side.
	trendStrongUp := f.MACD[cur] > 0 && close > f.SMAShort[cur] && close > f.SMALong[cur] &&
		f.ADX[cur] > th.ADXThreshold
	trendStrongDown := f.MACD[cur] < 0 && close < f.SMAShort[cur] && close < f.SMALong[cur] &&
		f.ADX[cur] > th.ADXThreshold

	switch {
	case momentumBuy && trendBuy:
		momo := "Stoch"
		if f.RSI[cur] < th.RSIOversold {
			momo = "RSI"
		}
		trend := "SMA"
		if macdCrossUp {
			trend = "MACD"
		}
		return Verdict{
			Kind:   model.SignalNewBuy,
			Reason: fmt.Sprintf("momentum (%s) and trend (%s) both confirm buy", momo, trend),
			Ready:  true,
		}

	case momentumSell && trendSell:
		momo := "Stoch"
		if f.RSI[cur] > th.RSIOverbought {
			momo = "RSI"
		}
		trend := "SMA"
		if macdCrossDown {
			trend = "MACD"
		}
		return Verdict{
			Kind:   model.SignalTakeProfitSell,
			Reason: fmt.Sprintf("momentum (%s) and trend (%s) both confirm sell", momo, trend),
			Ready:  true,
		}

	case f.RSI[cur] > th.RSIOverbought && trendStrongUp:
		return Verdict{
			Kind:   model.SignalRiskPullback,
			Reason: fmt.Sprintf("RSI (%.2f) overbought but uptrend still strong (ADX=%.2f)", f.RSI[cur], f.ADX[cur]),
			Ready:  true,
		}

	case f.RSI[cur] < th.RSIOversold && trendStrongDown:
		return Verdict{
			Kind:   model.SignalRiskBottomFish,
			Reason: fmt.Sprintf("RSI (%.2f) oversold but downtrend still strong (ADX=%.2f)", f.RSI[cur], f.ADX[cur]),
			Ready:  true,
		}
	}

	return Verdict{Ready: true}
}

// crossAbove reports whether series A crossed above series B on this bar:
// strictly above now, at or below before. The asymmetry prevents a flat
// touch from firing twice.
func crossAbove(curA, curB, prevA, prevB float64) bool {
	return curA > curB && prevA <= prevB
}
