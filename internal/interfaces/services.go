package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/folio/internal/models"
)

// QuoteGateway is the resilient, cached front for a MarketDataClient
type QuoteGateway interface {
	// LatestPrice never fails: an unobtainable price comes back with
	// Status == models.PriceStatusUnavailable.
	LatestPrice(ctx context.Context, symbol string) models.Quote

	// Splits returns split events in [from, to], ascending by date.
	// Errors wrap models.ErrSplitLookup.
	Splits(ctx context.Context, symbol string, from, to time.Time) ([]models.SplitEvent, error)

	// IsTradeable screens out identifiers that should never reach the network
	IsTradeable(symbol string) bool

	// Invalidate drops one cached lookup so the next call refetches
	Invalidate(symbol string, kind models.LookupKind)
}

// RateSource supplies the current rate for an ordered currency pair
type RateSource interface {
	FXRate(ctx context.Context, from, to string) (float64, error)
}

// CurrencyConverter converts amounts between currencies. Failures wrap
// models.ErrConversionUnavailable; callers must not treat them as zero.
type CurrencyConverter interface {
	Convert(ctx context.Context, amount float64, from, to string) (float64, error)
	Rate(ctx context.Context, from, to string) (float64, error)
}

// TradeLoader produces the normalised, time-ordered trade ledger
type TradeLoader interface {
	Load(ctx context.Context) ([]models.TradeRecord, error)
}

// PortfolioService is the valuation surface consumed by the CLI
type PortfolioService interface {
	Load(ctx context.Context) error
	Holdings() models.Holdings
	Trades() []models.TradeRecord
	Summary(ctx context.Context) (*models.PortfolioSummary, error)
	HoldingDetail(ctx context.Context, symbol string) (*models.HoldingDetail, error)
	DetailedHoldings(ctx context.Context) (*models.DetailedHoldings, error)
	SplitsAnalysis(ctx context.Context) (*models.SplitsAnalysis, error)
	History(ctx context.Context, days int, currency string) (*models.ValueHistory, error)
	RefreshPrices(ctx context.Context) error
}
