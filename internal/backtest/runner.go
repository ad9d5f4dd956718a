package backtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"tickwatch/internal/engine"
	"tickwatch/internal/indicator"
	"tickwatch/internal/regime"
	"tickwatch/pkg/model"
)

// DefaultFeeBps is the per-side transaction fee in basis points.
const DefaultFeeBps = 5.0

// Options configures a backtest run.
type Options struct {
	Symbols []string
	Start   time.Time // zero = from earliest fetched bar
	End     time.Time // zero = until latest fetched bar
	FeeBps  float64
	OutDir  string
}

// Summary is the aggregate line for one symbol.
type Summary struct {
	Symbol  string
	Metrics Metrics
	Err     error
}

// Runner replays the rule matrix over history for a list of symbols and
// writes per-symbol trade, equity, and signal files plus a run summary.
// A fetch failure for one symbol is reported and the run continues with
// the remaining symbols.
type Runner struct {
	source     regime.HistoricalSource
	params     indicator.Params
	proxy      string
	log        zerolog.Logger
	onProgress func(done, total int)
}

// NewRunner creates a backtest runner. proxy is the market series used to
// derive the per-day volatility regime.
func NewRunner(source regime.HistoricalSource, params indicator.Params, proxy string, log zerolog.Logger) *Runner {
	return &Runner{source: source, params: params, proxy: proxy, log: log}
}

// SetProgressCallback registers a callback invoked after each symbol.
func (r *Runner) SetProgressCallback(fn func(done, total int)) {
	r.onProgress = fn
}

// Run backtests every symbol in opts and returns one summary per symbol.
// Only symbol-level failures are embedded in summaries; an error return
// means the run itself could not proceed (bad options, proxy unavailable).
func (r *Runner) Run(ctx context.Context, opts Options) ([]Summary, error) {
	if len(opts.Symbols) == 0 {
		return nil, fmt.Errorf("backtest: no symbols given")
	}
	if opts.FeeBps < 0 {
		return nil, fmt.Errorf("backtest: negative fee: %f", opts.FeeBps)
	}
	if opts.OutDir != "" {
		if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output dir: %w", err)
		}
	}

	daysBack := lookbackDays(opts.Start)

	// The regime proxy is shared by every symbol; fetch it once. Without
	// it there is no per-day threshold lookup, so this failure is fatal.
	proxyBars, err := r.source.DailyBars(ctx, r.proxy, daysBack)
	if err != nil {
		return nil, fmt.Errorf("fetching market proxy %s: %w", r.proxy, err)
	}
	proxyBars = sliceRange(proxyBars, opts.Start, opts.End)
	states := regime.HistoricalStates(proxyBars)
	stateByDay := make(map[string]model.Regime, len(proxyBars))
	for i, b := range proxyBars {
		stateByDay[dayKey(b.Time)] = states[i]
	}

	summaries := make([]Summary, 0, len(opts.Symbols))
	for i, symbol := range opts.Symbols {
		sum := Summary{Symbol: symbol}
		res, rows, err := r.runSymbol(ctx, symbol, daysBack, opts, stateByDay)
		if err != nil {
			r.log.Error().Err(err).Str("symbol", symbol).Msg("backtest failed")
			sum.Err = err
		} else {
			sum.Metrics = res.Metrics
			if opts.OutDir != "" {
				if err := r.writeOutputs(opts.OutDir, symbol, rows, res); err != nil {
					r.log.Error().Err(err).Str("symbol", symbol).Msg("writing outputs failed")
					sum.Err = err
				}
			}
		}
		summaries = append(summaries, sum)
		if r.onProgress != nil {
			r.onProgress(i+1, len(opts.Symbols))
		}
	}

	if opts.OutDir != "" {
		if err := writeSummary(opts.OutDir, summaries); err != nil {
			return summaries, fmt.Errorf("writing summary: %w", err)
		}
	}
	return summaries, nil
}

func (r *Runner) runSymbol(ctx context.Context, symbol string, daysBack int, opts Options, stateByDay map[string]model.Regime) (Result, []SignalRow, error) {
	bars, err := r.source.DailyBars(ctx, symbol, daysBack)
	if err != nil {
		return Result{}, nil, fmt.Errorf("fetching %s: %w", symbol, err)
	}
	bars = sliceRange(bars, opts.Start, opts.End)
	if len(bars) == 0 {
		return Result{}, nil, fmt.Errorf("no bars for %s in the requested range", symbol)
	}

	rows := r.annotate(bars, stateByDay)
	res := Simulate(rows, opts.FeeBps)
	r.log.Info().
		Str("symbol", symbol).
		Int("bars", len(bars)).
		Int("trades", res.Metrics.NumTrades).
		Float64("total_return", res.Metrics.TotalReturn).
		Msg("backtest complete")
	return res, rows, nil
}

// annotate evaluates the rule matrix for every bar, using the per-day
// regime lookup (carried forward over days the proxy has no state for)
// to pick that day's thresholds.
func (r *Runner) annotate(bars []model.Bar, stateByDay map[string]model.Regime) []SignalRow {
	frame := indicator.Compute(bars, r.params)
	rows := make([]SignalRow, len(bars))
	state := model.RegimeLowVolatility
	for i, b := range bars {
		if s, ok := stateByDay[dayKey(b.Time)]; ok {
			state = s
		}
		v := engine.EvaluateAt(frame, i, model.ThresholdsFor(state))
		rows[i] = SignalRow{
			Bar:     b,
			State:   state,
			Kind:    v.Kind,
			Reason:  v.Reason,
			Decided: v.Ready,
		}
	}
	return rows
}

// lookbackDays sizes the fetch window: enough history before the start
// date for indicator and regime warm-up, or a long default when no start
// was given.
func lookbackDays(start time.Time) int {
	if start.IsZero() {
		return 2000
	}
	span := int(time.Since(start).Hours() / 24)
	if span < 1 {
		span = 1
	}
	if span+300 < 400 {
		return 400
	}
	return span + 300
}

func sliceRange(bars []model.Bar, start, end time.Time) []model.Bar {
	lo, hi := 0, len(bars)
	for lo < hi && !start.IsZero() && bars[lo].Time.Before(start) {
		lo++
	}
	for hi > lo && !end.IsZero() && bars[hi-1].Time.After(end) {
		hi--
	}
	return bars[lo:hi]
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func (r *Runner) writeOutputs(dir, symbol string, rows []SignalRow, res Result) error {
	if err := writeCSV(filepath.Join(dir, "signals_"+symbol+".csv"),
		[]string{"timestamp", "open", "high", "low", "close", "volume", "market_state", "signal", "reason"},
		len(rows), func(i int) []string {
			row := rows[i]
			return []string{
				row.Bar.Time.Format("2006-01-02"),
				formatFloat(row.Bar.Open),
				formatFloat(row.Bar.High),
				formatFloat(row.Bar.Low),
				formatFloat(row.Bar.Close),
				strconv.FormatInt(row.Bar.Volume, 10),
				string(row.State),
				string(row.Kind),
				row.Reason,
			}
		}); err != nil {
		return err
	}

	if err := writeCSV(filepath.Join(dir, "trades_"+symbol+".csv"),
		[]string{"entry_time", "entry_price", "exit_time", "exit_price", "pct_return"},
		len(res.Trades), func(i int) []string {
			t := res.Trades[i]
			return []string{
				t.EntryTime.Format("2006-01-02"),
				formatFloat(t.EntryPrice),
				t.ExitTime.Format("2006-01-02"),
				formatFloat(t.ExitPrice),
				formatFloat(t.PctReturn),
			}
		}); err != nil {
		return err
	}

	return writeCSV(filepath.Join(dir, "equity_"+symbol+".csv"),
		[]string{"timestamp", "equity"},
		len(res.Equity), func(i int) []string {
			p := res.Equity[i]
			return []string{p.Time.Format("2006-01-02"), formatFloat(p.Equity)}
		})
}

func writeSummary(dir string, summaries []Summary) error {
	ok := make([]Summary, 0, len(summaries))
	for _, s := range summaries {
		if s.Err == nil {
			ok = append(ok, s)
		}
	}
	return writeCSV(filepath.Join(dir, "summary.csv"),
		[]string{"ticker", "num_trades", "win_rate", "avg_return_per_trade", "total_return", "final_equity"},
		len(ok), func(i int) []string {
			s := ok[i]
			return []string{
				s.Symbol,
				strconv.Itoa(s.Metrics.NumTrades),
				formatFloat(s.Metrics.WinRate),
				formatFloat(s.Metrics.AvgReturnPerTrade),
				formatFloat(s.Metrics.TotalReturn),
				formatFloat(s.Metrics.FinalEquity),
			}
		})
}

func writeCSV(path string, header []string, n int, row func(i int) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
