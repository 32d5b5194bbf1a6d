// Package app wires configuration, clients and services into a runnable
// valuation core shared by every cmd/folio subcommand.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobmcallan/folio/internal/clients/eodhd"
	"github.com/bobmcallan/folio/internal/clients/yahoo"
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/services/fx"
	"github.com/bobmcallan/folio/internal/services/ledger"
	"github.com/bobmcallan/folio/internal/services/portfolio"
	"github.com/bobmcallan/folio/internal/services/quote"
	"github.com/bobmcallan/folio/internal/services/splits"
)

// App holds all initialized clients and services
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Client      interfaces.MarketDataClient
	Gateway     *quote.Service
	Converter   *fx.Converter
	Portfolio   *portfolio.Service
	StartupTime time.Time

	refreshCancel context.CancelFunc
	refreshDone   chan struct{}
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath picks the config file: the given path, FOLIO_CONFIG,
// folio.toml next to the binary, then config/folio.toml.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("FOLIO_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "folio.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/folio.toml" // fallback for development
		}
	}
	return configPath
}

// NewApp loads configuration and initializes every client and service.
// configPath may be empty, in which case ResolveConfigPath decides.
func NewApp(configPath string) (*App, error) {
	common.LoadVersionFromFile()

	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	client, err := NewMarketDataClient(config, logger)
	if err != nil {
		return nil, err
	}

	return NewAppWithClient(config, client, logger), nil
}

// NewMarketDataClient builds the client named by clients.provider
func NewMarketDataClient(config *common.Config, logger *common.Logger) (interfaces.MarketDataClient, error) {
	switch strings.ToLower(config.Clients.Provider) {
	case "", "yahoo":
		c := config.Clients.Yahoo
		return yahoo.NewClient(
			yahoo.WithBaseURL(c.BaseURL),
			yahoo.WithLogger(logger),
			yahoo.WithRateLimit(c.RateLimit),
			yahoo.WithTimeout(c.GetTimeout()),
		), nil
	case "eodhd":
		key, err := config.ResolveAPIKey()
		if err != nil {
			return nil, err
		}
		c := config.Clients.EODHD
		return eodhd.NewClient(key,
			eodhd.WithBaseURL(c.BaseURL),
			eodhd.WithLogger(logger),
			eodhd.WithRateLimit(c.RateLimit),
			eodhd.WithTimeout(c.GetTimeout()),
			eodhd.WithDefaultExchange(c.DefaultExchange),
		), nil
	default:
		return nil, fmt.Errorf("unknown market data provider %q", config.Clients.Provider)
	}
}

// NewAppWithClient wires the services around an existing market data client
func NewAppWithClient(config *common.Config, client interfaces.MarketDataClient, logger *common.Logger) *App {
	start := time.Now()

	scheduler := common.NewScheduler(config.Gateway, logger)
	gateway := quote.NewService(client, quote.PolicyFromConfig(config.Gateway), logger)
	converter := fx.NewConverter(gateway, config.Currency.Pivot, logger)

	portfolioService := portfolio.NewService(
		ledger.NewLoader(config.Ledger, logger),
		splits.NewEngine(gateway, scheduler, logger),
		portfolio.NewAggregator(gateway, scheduler, logger),
		converter,
		portfolio.OptionsFromConfig(config),
		logger,
	)

	logger.Debug().
		Str("provider", client.Name()).
		Dur("startup", time.Since(start)).
		Msg("App initialized")

	return &App{
		Config:      config,
		Logger:      logger,
		Client:      client,
		Gateway:     gateway,
		Converter:   converter,
		Portfolio:   portfolioService,
		StartupTime: start,
	}
}

// Close stops background work started by the App and waits for it to finish
func (a *App) Close() {
	a.stopPriceRefresh()
}
