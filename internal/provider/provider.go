package provider

import (
	"context"
	"errors"

	"tickwatch/pkg/model"
)

// ErrNoData indicates the provider responded but has no bars for the symbol.
var ErrNoData = errors.New("no data available")

// Historical fetches end-of-day OHLCV history.
type Historical interface {
	// Name returns the provider name
	Name() string

	// DailyBars fetches daily OHLCV bars covering roughly the last `days`
	// calendar days, oldest first
	DailyBars(ctx context.Context, symbol string, days int) ([]model.Bar, error)

	// IsAvailable checks if the provider is usable (has valid API key)
	IsAvailable() bool

	// RateLimit returns the rate limit per minute
	RateLimit() int
}

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Fallback tries multiple providers in order
type Fallback struct {
	providers []Historical
}

// NewFallback creates a fallback provider from the available providers
func NewFallback(providers ...Historical) *Fallback {
	available := make([]Historical, 0, len(providers))
	for _, p := range providers {
		if p.IsAvailable() {
			available = append(available, p)
		}
	}
	return &Fallback{providers: available}
}

// Name returns the combined provider name
func (f *Fallback) Name() string {
	return "fallback"
}

// DailyBars tries each provider in order until one succeeds
func (f *Fallback) DailyBars(ctx context.Context, symbol string, days int) ([]model.Bar, error) {
	var lastErr error
	for _, p := range f.providers {
		bars, err := p.DailyBars(ctx, symbol, days)
		if err == nil {
			return bars, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = &ProviderError{Provider: f.Name(), Err: ErrNoData, Retryable: false}
	}
	return nil, lastErr
}

// IsAvailable returns true if any provider is available
func (f *Fallback) IsAvailable() bool {
	return len(f.providers) > 0
}

// RateLimit returns the highest rate limit among providers
func (f *Fallback) RateLimit() int {
	maxRate := 0
	for _, p := range f.providers {
		if p.RateLimit() > maxRate {
			maxRate = p.RateLimit()
		}
	}
	return maxRate
}

// Providers returns the list of underlying providers
func (f *Fallback) Providers() []Historical {
	return f.providers
}
