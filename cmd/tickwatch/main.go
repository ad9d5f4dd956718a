package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"tickwatch/internal/backtest"
	"tickwatch/internal/config"
	"tickwatch/internal/daemon"
	"tickwatch/internal/provider"
	"tickwatch/internal/regime"
)

var (
	cfgFile    string
	jsonLogs   bool
	verbose    bool
	symbolList string
	startDate  string
	endDate    string
	feeBps     float64
	outDir     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tickwatch",
		Short: "Rule-based trading signal watcher and backtester",
		Long: `Tickwatch watches live market data, classifies the volatility regime
once a day, and emits discrete trading signals from a fixed momentum and
trend rule matrix. The same rules can be replayed over history.

Examples:
  tickwatch watch
  tickwatch backtest --symbols AAPL,MSFT --start 2023-01-01 --end 2024-01-01
  tickwatch classify`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit JSON logs instead of console output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "show debug logs")

	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the rule matrix over daily history",
		RunE:  runBacktest,
	}
	backtestCmd.Flags().StringVar(&symbolList, "symbols", "", "comma-separated symbols (default: watch list from config)")
	backtestCmd.Flags().StringVar(&startDate, "start", "", "start date (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&endDate, "end", "", "end date (YYYY-MM-DD)")
	backtestCmd.Flags().Float64Var(&feeBps, "fee-bps", backtest.DefaultFeeBps, "per-side fee in basis points")
	backtestCmd.Flags().StringVar(&outDir, "out", "backtest_outputs", "output directory for CSV results")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "watch",
			Short: "Watch live data and emit signals",
			RunE:  runWatch,
		},
		backtestCmd,
		&cobra.Command{
			Use:   "classify",
			Short: "Classify the market volatility regime once and exit",
			RunE:  runClassify,
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	var out zerolog.Logger
	if jsonLogs {
		out = zerolog.New(os.Stderr)
	} else {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return out.Level(level).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted. Shutting down...")
		cancel()
	}()
	return ctx, cancel
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	return d.Run(ctx)
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	store, err := regime.NewStore(cfg.Regime.StatusFile, log)
	if err != nil {
		return err
	}
	source := newHistorical(cfg)
	classifier := regime.NewClassifier(source, store, cfg.Regime.Proxies, log)

	ctx, cancel := signalContext()
	defer cancel()

	state, err := classifier.Run(ctx)
	if err != nil {
		return fmt.Errorf("classification: %w", err)
	}

	th := store.Active()
	fmt.Printf("Market regime: %s\n", state)
	fmt.Printf("Thresholds: RSI overbought %.0f, RSI oversold %.0f, ADX %.0f\n",
		th.RSIOverbought, th.RSIOversold, th.ADXThreshold)
	return nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	symbols := cfg.Watch.Symbols
	if symbolList != "" {
		symbols = nil
		for _, s := range strings.Split(symbolList, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, strings.ToUpper(s))
			}
		}
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols to backtest")
	}

	opts := backtest.Options{
		Symbols: symbols,
		FeeBps:  feeBps,
		OutDir:  outDir,
	}
	if startDate != "" {
		if opts.Start, err = time.Parse("2006-01-02", startDate); err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
	}
	if endDate != "" {
		if opts.End, err = time.Parse("2006-01-02", endDate); err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
	}

	source := newHistorical(cfg)
	runner := backtest.NewRunner(source, cfg.Strategy.Params, cfg.Regime.Proxies[0], log)

	fmt.Printf("Backtesting %d symbols...\n\n", len(symbols))

	bar := progressbar.NewOptions(len(symbols),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Backtesting"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	runner.SetProgressCallback(func(done, total int) {
		bar.Set(done)
	})

	ctx, cancel := signalContext()
	defer cancel()

	summaries, err := runner.Run(ctx, opts)
	bar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}

	outputSummaryTable(summaries)
	fmt.Printf("\nResults written to %s\n", outDir)
	return nil
}

func outputSummaryTable(summaries []backtest.Summary) {
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Symbol", "Trades", "Win Rate", "Avg Return", "Total Return", "Final Equity"}),
	)

	for _, s := range summaries {
		if s.Err != nil {
			table.Append([]string{s.Symbol, "-", "-", "-", "-", "error: " + s.Err.Error()})
			continue
		}
		m := s.Metrics
		table.Append([]string{
			s.Symbol,
			fmt.Sprintf("%d", m.NumTrades),
			fmt.Sprintf("%.1f%%", m.WinRate*100),
			fmt.Sprintf("%.2f%%", m.AvgReturnPerTrade*100),
			fmt.Sprintf("%.2f%%", m.TotalReturn*100),
			fmt.Sprintf("%.4f", m.FinalEquity),
		})
	}

	table.Render()
}

// newHistorical builds the daily-bar source: Finnhub when a key is set,
// Yahoo as the keyless fallback, with a shared cache on top.
func newHistorical(cfg *config.Config) regime.HistoricalSource {
	fallback := provider.NewFallback(
		provider.NewFinnhub(cfg.API.Finnhub.Key, cfg.API.Finnhub.RateLimit),
		provider.NewYahoo(),
	)
	return provider.NewCaching(fallback, regime.FetchDays)
}
