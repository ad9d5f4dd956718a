package provider

import (
	"context"
	"sync"

	"tickwatch/pkg/model"
)

// Caching wraps a Historical with an in-memory cache for DailyBars.
// Meant for runs where several components read the same symbol's history.
type Caching struct {
	inner   Historical
	cache   map[string][]model.Bar
	mu      sync.Mutex
	maxDays int
}

// NewCaching creates a caching wrapper. maxDays is the number of days to
// always fetch so one call can serve every later, shorter request.
func NewCaching(inner Historical, maxDays int) *Caching {
	return &Caching{
		inner:   inner,
		cache:   make(map[string][]model.Bar),
		maxDays: maxDays,
	}
}

func (p *Caching) Name() string      { return p.inner.Name() }
func (p *Caching) IsAvailable() bool { return p.inner.IsAvailable() }
func (p *Caching) RateLimit() int    { return p.inner.RateLimit() }

// DailyBars serves from cache when possible, fetching maxDays on a miss.
func (p *Caching) DailyBars(ctx context.Context, symbol string, days int) ([]model.Bar, error) {
	p.mu.Lock()
	if cached, ok := p.cache[symbol]; ok {
		p.mu.Unlock()
		if len(cached) >= days {
			return cached[len(cached)-days:], nil
		}
		return cached, nil
	}
	p.mu.Unlock()

	fetchDays := p.maxDays
	if days > fetchDays {
		fetchDays = days
	}

	bars, err := p.inner.DailyBars(ctx, symbol, fetchDays)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[symbol] = bars
	p.mu.Unlock()

	if len(bars) >= days {
		return bars[len(bars)-days:], nil
	}
	return bars, nil
}
