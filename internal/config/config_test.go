package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Watch.BarInterval != time.Minute {
		t.Errorf("bar_interval default = %v, want 1m", cfg.Watch.BarInterval)
	}
	if cfg.Regime.Schedule != "0 8 * * *" {
		t.Errorf("schedule default = %q", cfg.Regime.Schedule)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
watch:
  symbols: [TSLA]
  bar_interval: 5m
regime:
  proxies: [SPY]
strategy:
  params:
    rsi_period: 21
server:
  port: 9090
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Watch.Symbols) != 1 || cfg.Watch.Symbols[0] != "TSLA" {
		t.Errorf("symbols = %v", cfg.Watch.Symbols)
	}
	if cfg.Watch.BarInterval != 5*time.Minute {
		t.Errorf("bar_interval = %v, want 5m", cfg.Watch.BarInterval)
	}
	if cfg.Strategy.Params.RSIPeriod != 21 {
		t.Errorf("rsi_period = %d, want 21", cfg.Strategy.Params.RSIPeriod)
	}
	// Untouched fields keep defaults.
	if cfg.Strategy.Params.MACDSlow != 26 {
		t.Errorf("macd_slow = %d, want default 26", cfg.Strategy.Params.MACDSlow)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("watch: [not: a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no symbols", func(c *Config) { c.Watch.Symbols = nil }},
		{"zero interval", func(c *Config) { c.Watch.BarInterval = 0 }},
		{"buffer below min", func(c *Config) { c.Watch.BufferBars = c.Watch.MinBars - 1 }},
		{"no proxies", func(c *Config) { c.Regime.Proxies = nil }},
		{"empty status file", func(c *Config) { c.Regime.StatusFile = "" }},
		{"bad params", func(c *Config) { c.Strategy.Params.RSIPeriod = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("error should wrap ErrInvalid: %v", err)
			}
		})
	}
}
