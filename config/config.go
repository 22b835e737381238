package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/equity/calendar"
)

// Config represents the complete balance-curve configuration
type Config struct {
	Account AccountConfig `json:"account" yaml:"account"`
	Market  MarketConfig  `json:"market" yaml:"market"`
	Prices  PricesConfig  `json:"prices" yaml:"prices"`
	Cache   CacheConfig   `json:"cache" yaml:"cache"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	ID              string  `json:"id" yaml:"id"`
	Currency        string  `json:"currency" yaml:"currency"`
	StartingBalance float64 `json:"starting_balance" yaml:"starting_balance"`
}

// MarketConfig places the trading day boundary
type MarketConfig struct {
	Timezone string `json:"timezone" yaml:"timezone"`
	OpenTime string `json:"open_time" yaml:"open_time"` // "HH:MM"
}

// PricesConfig controls the historical price provider
type PricesConfig struct {
	BaseURL      string `json:"base_url" yaml:"base_url"`
	BatchSize    int    `json:"batch_size" yaml:"batch_size"`
	BatchDelay   string `json:"batch_delay" yaml:"batch_delay"` // e.g. "12s"
	Timeout      string `json:"timeout" yaml:"timeout"`
	LookbackDays int    `json:"lookback_days" yaml:"lookback_days"`
}

// CacheConfig controls where EOD snapshots are persisted
type CacheConfig struct {
	DBPath     string `json:"db_path" yaml:"db_path"`
	Key        string `json:"key" yaml:"key"`
	QuotaBytes int64  `json:"quota_bytes" yaml:"quota_bytes"`
	MaxRetries int    `json:"max_retries" yaml:"max_retries"`
}

// JournalConfig points at the trade journal
type JournalConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// BatchDelayDuration parses the inter-batch delay
func (p PricesConfig) BatchDelayDuration() (time.Duration, error) {
	if p.BatchDelay == "" {
		return 0, nil
	}
	return time.ParseDuration(p.BatchDelay)
}

// TimeoutDuration parses the per-request timeout
func (p PricesConfig) TimeoutDuration() (time.Duration, error) {
	if p.Timeout == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(p.Timeout)
}

// Calendar builds the trading calendar described by the market section
func (c *Config) Calendar() (calendar.Calendar, error) {
	return calendar.New(c.Market.Timezone, c.Market.OpenTime)
}

// Load reads an optional .env file, the config file at path (defaults when
// path is empty), then applies EQUITY_* environment overrides and validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a file (JSON or YAML)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("EQUITY_JOURNAL_DB"); v != "" {
		c.Journal.DBPath = v
	}
	if v := os.Getenv("EQUITY_CACHE_DB"); v != "" {
		c.Cache.DBPath = v
	}
	if v := os.Getenv("EQUITY_PRICES_BASE_URL"); v != "" {
		c.Prices.BaseURL = v
	}
	if v := os.Getenv("EQUITY_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("EQUITY_STARTING_BALANCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("EQUITY_STARTING_BALANCE: %w", err)
		}
		c.Account.StartingBalance = f
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.StartingBalance < 0 {
		return fmt.Errorf("account.starting_balance must not be negative")
	}
	if _, err := c.Calendar(); err != nil {
		return fmt.Errorf("market: %w", err)
	}
	if c.Prices.BatchSize <= 0 {
		return fmt.Errorf("prices.batch_size must be positive")
	}
	if d, err := c.Prices.BatchDelayDuration(); err != nil || d < 0 {
		return fmt.Errorf("prices.batch_delay must be a non-negative duration")
	}
	if d, err := c.Prices.TimeoutDuration(); err != nil || d <= 0 {
		return fmt.Errorf("prices.timeout must be a positive duration")
	}
	if c.Prices.LookbackDays < 0 {
		return fmt.Errorf("prices.lookback_days must not be negative")
	}
	if c.Cache.DBPath == "" {
		return fmt.Errorf("cache.db_path is required")
	}
	if c.Cache.Key == "" {
		return fmt.Errorf("cache.key is required")
	}
	if c.Cache.MaxRetries <= 0 {
		return fmt.Errorf("cache.max_retries must be positive")
	}
	if c.Journal.DBPath == "" {
		return fmt.Errorf("journal.db_path is required")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:              "ACCT-001",
			Currency:        "USD",
			StartingBalance: 10000,
		},
		Market: MarketConfig{
			Timezone: "America/New_York",
			OpenTime: "09:30",
		},
		Prices: PricesConfig{
			BaseURL:      "https://query1.finance.yahoo.com",
			BatchSize:    20,
			BatchDelay:   "12s",
			Timeout:      "30s",
			LookbackDays: 5,
		},
		Cache: CacheConfig{
			DBPath:     "./equity-cache.sqlite",
			Key:        "eod_snapshot_cache",
			QuotaBytes: 5 << 20,
			MaxRetries: 3,
		},
		Journal: JournalConfig{
			DBPath: "./journal.sqlite",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
