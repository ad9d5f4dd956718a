package backtest

import (
	"tickwatch/pkg/model"
)

// SignalRow is one bar of a replayed series annotated with the decision
// the rule matrix produced for it.
type SignalRow struct {
	Bar    model.Bar
	State  model.Regime
	Kind   model.SignalKind
	Reason string
	// Decided is false while indicators were still warming up. Tracked so
	// the signals CSV can distinguish "no decision" from "no signal".
	Decided bool
}

// Metrics summarizes a simulated run. Every field is zero-valued when no
// trades occurred; there is nothing to divide by.
type Metrics struct {
	NumTrades         int     `json:"num_trades"`
	WinRate           float64 `json:"win_rate"`
	AvgReturnPerTrade float64 `json:"avg_return_per_trade"`
	TotalReturn       float64 `json:"total_return"`
	FinalEquity       float64 `json:"final_equity"`
}

// Result bundles the outputs of one simulated symbol.
type Result struct {
	Trades  []model.Trade
	Equity  []model.EquityPoint
	Metrics Metrics
}

// Simulate replays the annotated series with next-bar-open execution: a
// signal on bar i fills at the open of bar i+1, so the final bar is never
// actionable. One position at a time, long only; a buy is acted on only
// when flat and a take-profit sell only when long. Entry pays the per-side
// fee as a markup, exit as a markdown. Equity compounds multiplicatively
// at trade close and is carried flat otherwise.
func Simulate(rows []SignalRow, feeBpsPerSide float64) Result {
	feePerSide := feeBpsPerSide / 10000.0

	var (
		trades     []model.Trade
		equitySer  []model.EquityPoint
		equity     = 1.0
		inPosition bool
		entryPrice float64
		openTime   = -1
	)
	for i := 0; i+1 < len(rows); i++ {
		equitySer = append(equitySer, model.EquityPoint{Time: rows[i].Bar.Time, Equity: equity})

		nextOpen := rows[i+1].Bar.Open

		if rows[i].Kind == model.SignalNewBuy && !inPosition {
			inPosition = true
			entryPrice = nextOpen * (1 + feePerSide)
			openTime = i + 1
			continue
		}

		if rows[i].Kind == model.SignalTakeProfitSell && inPosition {
			exitPrice := nextOpen * (1 - feePerSide)
			pct := (exitPrice - entryPrice) / entryPrice
			equity *= 1 + pct
			trades = append(trades, model.Trade{
				EntryTime:  rows[openTime].Bar.Time,
				EntryPrice: entryPrice,
				ExitTime:   rows[i+1].Bar.Time,
				ExitPrice:  exitPrice,
				PctReturn:  pct,
			})
			inPosition = false
			openTime = -1
		}
	}

	return Result{
		Trades:  trades,
		Equity:  equitySer,
		Metrics: computeMetrics(trades, equity),
	}
}

func computeMetrics(trades []model.Trade, finalEquity float64) Metrics {
	m := Metrics{
		NumTrades:   len(trades),
		TotalReturn: finalEquity - 1,
		FinalEquity: finalEquity,
	}
	if len(trades) == 0 {
		return m
	}
	wins := 0
	sum := 0.0
	for _, t := range trades {
		if t.PctReturn > 0 {
			wins++
		}
		sum += t.PctReturn
	}
	m.WinRate = float64(wins) / float64(len(trades))
	m.AvgReturnPerTrade = sum / float64(len(trades))
	return m
}
