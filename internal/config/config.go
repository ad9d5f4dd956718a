package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tickwatch/internal/indicator"
)

// ErrInvalid marks configuration errors that must abort startup.
var ErrInvalid = errors.New("invalid config")

// Config represents the application configuration
type Config struct {
	API      APIConfig      `yaml:"api"`
	Watch    WatchConfig    `yaml:"watch"`
	Regime   RegimeConfig   `yaml:"regime"`
	Strategy StrategyConfig `yaml:"strategy"`
	Output   OutputConfig   `yaml:"output"`
	Notify   NotifyConfig   `yaml:"notify"`
	Server   ServerConfig   `yaml:"server"`
}

// APIConfig holds data provider configurations
type APIConfig struct {
	Finnhub ProviderConfig `yaml:"finnhub"`
}

// ProviderConfig holds individual provider settings
type ProviderConfig struct {
	Key       string `yaml:"key"`
	RateLimit int    `yaml:"rate_limit"` // requests per minute
}

// WatchConfig holds live watch settings
type WatchConfig struct {
	Symbols     []string      `yaml:"symbols"`
	BarInterval time.Duration `yaml:"bar_interval"`
	MinBars     int           `yaml:"min_bars"`
	BufferBars  int           `yaml:"buffer_bars"`
}

// RegimeConfig holds volatility classification settings
type RegimeConfig struct {
	Proxies    []string `yaml:"proxies"`
	Schedule   string   `yaml:"schedule"` // cron expression
	StatusFile string   `yaml:"status_file"`
}

// StrategyConfig holds indicator periods
type StrategyConfig struct {
	Params indicator.Params `yaml:"params"`
}

// OutputConfig holds signal sink settings
type OutputConfig struct {
	SignalsCSV string `yaml:"signals_csv"`
	Database   string `yaml:"database"` // sqlite file path, empty disables
}

// NotifyConfig holds alerting settings
type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
}

// ServerConfig holds the HTTP API settings
type ServerConfig struct {
	Port int `yaml:"port"` // 0 disables the server
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Finnhub: ProviderConfig{
				Key:       os.Getenv("FINNHUB_API_KEY"),
				RateLimit: 60,
			},
		},
		Watch: WatchConfig{
			Symbols:     []string{"AAPL", "MSFT", "GOOG"},
			BarInterval: time.Minute,
			MinBars:     50,
			BufferBars:  200,
		},
		Regime: RegimeConfig{
			Proxies:    []string{"SPY", "QQQ", "IWM"},
			Schedule:   "0 8 * * *",
			StatusFile: "system_status.json",
		},
		Strategy: StrategyConfig{
			Params: indicator.DefaultParams(),
		},
		Output: OutputConfig{
			SignalsCSV: "signals_log.csv",
			Database:   "signals.db",
		},
		Notify: NotifyConfig{
			TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
			TelegramChatID: os.Getenv("TELEGRAM_CHAT_ID"),
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if file doesn't exist
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Override with environment variables if set
	if key := os.Getenv("FINNHUB_API_KEY"); key != "" {
		cfg.API.Finnhub.Key = key
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Notify.TelegramToken = token
	}
	if chat := os.Getenv("TELEGRAM_CHAT_ID"); chat != "" {
		cfg.Notify.TelegramChatID = chat
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Watch.Symbols) == 0 {
		return fmt.Errorf("%w: at least one watch symbol is required", ErrInvalid)
	}
	if c.Watch.BarInterval <= 0 {
		return fmt.Errorf("%w: bar_interval must be positive", ErrInvalid)
	}
	if c.Watch.MinBars < 2 {
		return fmt.Errorf("%w: min_bars must be at least 2", ErrInvalid)
	}
	if c.Watch.BufferBars < c.Watch.MinBars {
		return fmt.Errorf("%w: buffer_bars must be at least min_bars", ErrInvalid)
	}
	if len(c.Regime.Proxies) == 0 {
		return fmt.Errorf("%w: at least one regime proxy is required", ErrInvalid)
	}
	if c.Regime.StatusFile == "" {
		return fmt.Errorf("%w: status_file is required", ErrInvalid)
	}
	if err := c.Strategy.Params.Validate(); err != nil {
		return fmt.Errorf("%w: strategy: %v", ErrInvalid, err)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalid, c.Server.Port)
	}
	return nil
}
