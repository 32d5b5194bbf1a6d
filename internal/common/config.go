// Package common provides shared utilities for Folio
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Folio
type Config struct {
	Environment string         `toml:"environment"`
	Ledger      LedgerConfig   `toml:"ledger"`
	Currency    CurrencyConfig `toml:"currency"`
	Clients     ClientsConfig  `toml:"clients"`
	Gateway     GatewayConfig  `toml:"gateway"`
	Report      ReportConfig   `toml:"report"`
	Logging     LoggingConfig  `toml:"logging"`
}

// LedgerConfig locates the raw trade files
type LedgerConfig struct {
	DataPath        string `toml:"data_path"`        // directory scanned for *.csv trade exports
	DefaultCurrency string `toml:"default_currency"` // used when a row has no currency column
}

// CurrencyConfig controls portfolio-level currency reporting
type CurrencyConfig struct {
	Base    string   `toml:"base"`    // currency totals are accumulated in
	Tracked []string `toml:"tracked"` // currencies the summary reports totals in
	Pivot   string   `toml:"pivot"`   // intermediate currency for cross conversion
}

// ClientsConfig holds market data client configurations
type ClientsConfig struct {
	Provider string      `toml:"provider"` // "yahoo" or "eodhd"
	Yahoo    YahooConfig `toml:"yahoo"`
	EODHD    EODHDConfig `toml:"eodhd"`
}

// YahooConfig holds Yahoo Finance chart API configuration
type YahooConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *YahooConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

// EODHDConfig holds EODHD API configuration
type EODHDConfig struct {
	BaseURL         string `toml:"base_url"`
	APIKey          string `toml:"api_key"`
	RateLimit       int    `toml:"rate_limit"`
	Timeout         string `toml:"timeout"`
	DefaultExchange string `toml:"default_exchange"`
}

// GetTimeout parses and returns the timeout duration
func (c *EODHDConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// GatewayConfig holds the resilience and scheduling policy for quote and split lookups
type GatewayConfig struct {
	Retries      int    `toml:"retries"`
	BaseDelay    string `toml:"base_delay"`
	MaxDelay     string `toml:"max_delay"`
	MinInterval  string `toml:"min_interval"`
	Concurrency  int    `toml:"concurrency"`
	BatchSize    int    `toml:"batch_size"`
	BatchDelay   string `toml:"batch_delay"`
	FetchTimeout string `toml:"fetch_timeout"`
}

// GetBaseDelay returns the first backoff interval
func (c *GatewayConfig) GetBaseDelay() time.Duration {
	return parseDuration(c.BaseDelay, 2*time.Second)
}

// GetMaxDelay returns the backoff interval cap
func (c *GatewayConfig) GetMaxDelay() time.Duration {
	return parseDuration(c.MaxDelay, 30*time.Second)
}

// GetMinInterval returns the minimum spacing between requests for one symbol
func (c *GatewayConfig) GetMinInterval() time.Duration {
	return parseDuration(c.MinInterval, 2*time.Second)
}

// GetBatchDelay returns the pause between symbol batches
func (c *GatewayConfig) GetBatchDelay() time.Duration {
	return parseDuration(c.BatchDelay, 3*time.Second)
}

// GetFetchTimeout returns the upper bound for one symbol's lookup including retries
func (c *GatewayConfig) GetFetchTimeout() time.Duration {
	return parseDuration(c.FetchTimeout, time.Minute)
}

// ReportConfig holds reporting options
type ReportConfig struct {
	TopN int `toml:"top_n"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Ledger: LedgerConfig{
			DataPath:        "data",
			DefaultCurrency: "USD",
		},
		Currency: CurrencyConfig{
			Base:    "USD",
			Tracked: []string{"USD", "SGD"},
			Pivot:   "USD",
		},
		Clients: ClientsConfig{
			Provider: "yahoo",
			Yahoo: YahooConfig{
				BaseURL:   "https://query2.finance.yahoo.com",
				RateLimit: 2,
				Timeout:   "10s",
			},
			EODHD: EODHDConfig{
				BaseURL:         "https://eodhd.com/api",
				RateLimit:       10,
				Timeout:         "30s",
				DefaultExchange: "US",
			},
		},
		Gateway: GatewayConfig{
			Retries:      3,
			BaseDelay:    "2s",
			MaxDelay:     "30s",
			MinInterval:  "2s",
			Concurrency:  5,
			BatchSize:    5,
			BatchDelay:   "3s",
			FetchTimeout: "1m",
		},
		Report: ReportConfig{
			TopN: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// A .env file in the working directory is loaded first if present.
func LoadConfig(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	normalizeCurrencies(config)
	applyLoggingDefaults(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FOLIO_ENV"); env != "" {
		config.Environment = env
	}

	if path := os.Getenv("FOLIO_DATA_PATH"); path != "" {
		config.Ledger.DataPath = path
	}

	if level := os.Getenv("FOLIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if format := os.Getenv("FOLIO_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if provider := os.Getenv("FOLIO_PROVIDER"); provider != "" {
		config.Clients.Provider = strings.ToLower(provider)
	}

	if base := os.Getenv("FOLIO_BASE_CURRENCY"); base != "" {
		config.Currency.Base = base
	}

	if tracked := os.Getenv("FOLIO_TRACKED_CURRENCIES"); tracked != "" {
		config.Currency.Tracked = strings.Split(tracked, ",")
	}

	if v := os.Getenv("FOLIO_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Gateway.BatchSize = n
		}
	}

	if v := os.Getenv("FOLIO_BATCH_DELAY"); v != "" {
		config.Gateway.BatchDelay = v
	}

	if v := os.Getenv("FOLIO_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Gateway.Concurrency = n
		}
	}

	for _, name := range []string{"EODHD_API_KEY", "FOLIO_EODHD_API_KEY"} {
		if key := os.Getenv(name); key != "" {
			config.Clients.EODHD.APIKey = key
			break
		}
	}
}

// normalizeCurrencies upper-cases currency codes and makes sure the base
// currency is always tracked.
func normalizeCurrencies(config *Config) {
	c := &config.Currency
	c.Base = strings.ToUpper(strings.TrimSpace(c.Base))
	if c.Base == "" {
		c.Base = "USD"
	}
	c.Pivot = strings.ToUpper(strings.TrimSpace(c.Pivot))
	if c.Pivot == "" {
		c.Pivot = "USD"
	}

	seen := map[string]bool{}
	tracked := []string{c.Base}
	seen[c.Base] = true
	for _, cur := range c.Tracked {
		cur = strings.ToUpper(strings.TrimSpace(cur))
		if cur == "" || seen[cur] {
			continue
		}
		seen[cur] = true
		tracked = append(tracked, cur)
	}
	c.Tracked = tracked

	config.Ledger.DefaultCurrency = strings.ToUpper(strings.TrimSpace(config.Ledger.DefaultCurrency))
}

// applyLoggingDefaults picks the log format when none was configured:
// JSON in production, console otherwise.
func applyLoggingDefaults(config *Config) {
	if strings.TrimSpace(config.Logging.Format) != "" {
		return
	}
	if config.IsProduction() {
		config.Logging.Format = "json"
	} else {
		config.Logging.Format = "console"
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ResolveAPIKey returns the EODHD key or an error naming where it was looked for
func (c *Config) ResolveAPIKey() (string, error) {
	if key := strings.TrimSpace(c.Clients.EODHD.APIKey); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("EODHD API key not found: set EODHD_API_KEY or clients.eodhd.api_key")
}
