package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tickwatch/pkg/model"
)

const defaultFeedURL = "wss://ws.finnhub.io"

// BarHandler receives a completed bar for a symbol.
type BarHandler func(symbol string, bar model.Bar)

// Feed streams bars for a watchlist until the context is cancelled.
type Feed interface {
	Run(ctx context.Context, handler BarHandler) error
}

// StreamFeed aggregates Finnhub trade ticks into fixed-interval bars.
// One bar per symbol per interval; a bar is emitted when a tick arrives
// past its interval boundary, or when the flush ticker finds it stale.
type StreamFeed struct {
	apiKey         string
	url            string
	symbols        []string
	interval       time.Duration
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            zerolog.Logger

	building map[string]*barBuilder
}

// barBuilder accumulates ticks for the bar starting at `start`.
type barBuilder struct {
	start time.Time
	bar   model.Bar
}

// NewStreamFeed creates a streaming feed for the given symbols.
// interval is the bar width; it must be positive.
func NewStreamFeed(apiKey string, symbols []string, interval time.Duration, log zerolog.Logger) *StreamFeed {
	return &StreamFeed{
		apiKey:         apiKey,
		url:            defaultFeedURL,
		symbols:        symbols,
		interval:       interval,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
		log:            log.With().Str("component", "feed").Logger(),
		building:       make(map[string]*barBuilder),
	}
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

// Run connects, subscribes and streams bars until ctx is cancelled.
// Connection failures trigger reconnects; only context cancellation ends the run.
func (f *StreamFeed) Run(ctx context.Context, handler BarHandler) error {
	if f.interval <= 0 {
		return fmt.Errorf("feed: bar interval must be positive")
	}

	for {
		err := f.runOnce(ctx, handler)
		if ctx.Err() != nil {
			f.flushAll(handler)
			return ctx.Err()
		}
		f.log.Warn().Err(err).Dur("retry_in", f.reconnectDelay).Msg("stream disconnected")

		select {
		case <-ctx.Done():
			f.flushAll(handler)
			return ctx.Err()
		case <-time.After(f.reconnectDelay):
		}
	}
}

func (f *StreamFeed) runOnce(ctx context.Context, handler BarHandler) error {
	u := fmt.Sprintf("%s?token=%s", f.url, f.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	defer conn.Close()

	for _, s := range f.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	f.log.Info().Int("symbols", len(f.symbols)).Msg("stream connected")

	// Close the connection when ctx ends so the blocked read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(f.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()

	flush := time.NewTicker(f.interval)
	defer flush.Stop()

	frames := make(chan []byte, 256)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- b:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return fmt.Errorf("feed read: %w", err)
		case <-flush.C:
			f.flushStale(time.Now(), handler)
		case b := <-frames:
			var m fhMessage
			if err := json.Unmarshal(b, &m); err != nil {
				continue // ignore non-JSON frames
			}
			if m.Type != "trade" {
				continue
			}
			for _, d := range m.Data {
				f.onTrade(d, handler)
			}
		}
	}
}

// onTrade folds one tick into the symbol's current bar, emitting the
// previous bar when the tick crosses an interval boundary.
func (f *StreamFeed) onTrade(t fhTrade, handler BarHandler) {
	at := time.UnixMilli(t.T)
	start := at.Truncate(f.interval)

	b, ok := f.building[t.S]
	if ok && start.After(b.start) {
		handler(t.S, b.bar)
		ok = false
	}

	if !ok {
		f.building[t.S] = &barBuilder{
			start: start,
			bar: model.Bar{
				Time:   start,
				Open:   t.P,
				High:   t.P,
				Low:    t.P,
				Close:  t.P,
				Volume: int64(t.V),
			},
		}
		return
	}

	if t.P > b.bar.High {
		b.bar.High = t.P
	}
	if t.P < b.bar.Low {
		b.bar.Low = t.P
	}
	b.bar.Close = t.P
	b.bar.Volume += int64(t.V)
}

// flushStale emits bars whose interval has fully elapsed, so thinly
// traded symbols still close their bars.
func (f *StreamFeed) flushStale(now time.Time, handler BarHandler) {
	cutoff := now.Truncate(f.interval)
	for sym, b := range f.building {
		if b.start.Before(cutoff) {
			handler(sym, b.bar)
			delete(f.building, sym)
		}
	}
}

func (f *StreamFeed) flushAll(handler BarHandler) {
	for sym, b := range f.building {
		handler(sym, b.bar)
		delete(f.building, sym)
	}
}
