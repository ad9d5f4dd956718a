package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tickwatch/internal/config"
	"tickwatch/internal/engine"
	"tickwatch/internal/notifier"
	"tickwatch/internal/provider"
	"tickwatch/internal/regime"
	"tickwatch/internal/sink"
	"tickwatch/internal/web"
	"tickwatch/pkg/model"
)

// Daemon runs the live watch: the streaming feed drives the signal
// detector while a cron job re-classifies the volatility regime and the
// API server reports state.
type Daemon struct {
	cfg      *config.Config
	feed     provider.Feed
	detector *engine.Detector
	classify *regime.Classifier
	store    *regime.Store
	recorder *sink.Recorder
	server   *web.Server
	cron     *cron.Cron
	log      zerolog.Logger

	closers []func() error
}

// New wires the daemon from configuration. The returned daemon owns the
// sinks it opens; Run closes them on exit.
func New(cfg *config.Config, log zerolog.Logger) (*Daemon, error) {
	d := &Daemon{
		cfg:  cfg,
		cron: cron.New(),
		log:  log.With().Str("component", "daemon").Logger(),
	}

	store, err := regime.NewStore(cfg.Regime.StatusFile, log)
	if err != nil {
		return nil, fmt.Errorf("open status store: %w", err)
	}
	d.store = store

	historical := provider.NewFallback(
		provider.NewFinnhub(cfg.API.Finnhub.Key, cfg.API.Finnhub.RateLimit),
		provider.NewYahoo(),
	)
	d.classify = regime.NewClassifier(historical, store, cfg.Regime.Proxies, log)

	var sinks []engine.Sink
	if cfg.Output.SignalsCSV != "" {
		csvLog, err := sink.NewCSVLog(cfg.Output.SignalsCSV)
		if err != nil {
			return nil, fmt.Errorf("open signal log: %w", err)
		}
		d.closers = append(d.closers, csvLog.Close)
		sinks = append(sinks, csvLog)
	}
	if cfg.Output.Database != "" {
		rec, err := sink.NewRecorder(cfg.Output.Database)
		if err != nil {
			return nil, fmt.Errorf("open signal database: %w", err)
		}
		d.closers = append(d.closers, rec.Close)
		d.recorder = rec
		sinks = append(sinks, rec)
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		sinks = append(sinks, notifier.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, log))
	}

	d.detector = engine.NewDetector(cfg.Strategy.Params, store, log, sinks...)
	d.detector.SetLimits(cfg.Watch.BufferBars, cfg.Watch.MinBars)

	d.feed = provider.NewStreamFeed(cfg.API.Finnhub.Key, cfg.Watch.Symbols, cfg.Watch.BarInterval, log)

	if cfg.Server.Port > 0 {
		d.server = web.NewServer(store, d.recorder, log)
	}

	return d, nil
}

// SetFeed replaces the streaming feed. Meant for tests and replay runs.
func (d *Daemon) SetFeed(f provider.Feed) {
	d.feed = f
}

// SetHistorical replaces the classifier's bar source. Meant for tests and
// replay runs.
func (d *Daemon) SetHistorical(source regime.HistoricalSource) {
	d.classify = regime.NewClassifier(source, d.store, d.cfg.Regime.Proxies, d.log)
}

// Run blocks until ctx is cancelled or a fatal component error occurs.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.closeAll()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Classify once at startup so the first bars already see the right
	// thresholds, then on the configured schedule.
	d.runClassification(ctx)
	if _, err := d.cron.AddFunc(d.cfg.Regime.Schedule, func() {
		d.runClassification(ctx)
	}); err != nil {
		return fmt.Errorf("register classification schedule: %w", err)
	}
	d.cron.Start()
	defer d.cron.Stop()

	errCh := make(chan error, 2)

	if d.server != nil {
		go func() {
			if err := d.server.Start(d.cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("api server: %w", err)
			}
		}()
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			_ = d.server.Shutdown(shutCtx)
		}()
	}

	go func() {
		err := d.feed.Run(ctx, func(symbol string, bar model.Bar) {
			d.detector.OnBar(ctx, symbol, bar)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("feed: %w", err)
		} else {
			errCh <- nil
		}
	}()

	d.log.Info().
		Strs("symbols", d.cfg.Watch.Symbols).
		Dur("bar_interval", d.cfg.Watch.BarInterval).
		Msg("watch started")

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (d *Daemon) runClassification(ctx context.Context) {
	state, err := d.classify.Run(ctx)
	if err != nil {
		if errors.Is(err, regime.ErrIndeterminate) {
			d.log.Warn().Msg("classification indeterminate, keeping previous thresholds")
			return
		}
		d.log.Error().Err(err).Msg("classification failed")
		return
	}
	d.log.Info().Str("state", string(state)).Msg("market regime classified")
}

func (d *Daemon) closeAll() {
	for _, c := range d.closers {
		if err := c(); err != nil {
			d.log.Error().Err(err).Msg("closing sink")
		}
	}
}
