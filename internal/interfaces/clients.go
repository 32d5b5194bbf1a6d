// Package interfaces defines service contracts for Folio
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/folio/internal/models"
)

// MarketDataClient is a remote source of quotes, split history and FX rates.
// Implementations return *APIError-style errors and never retry on their own.
type MarketDataClient interface {
	// Name identifies the provider, e.g. "yahoo"
	Name() string

	// GetRealTimeQuote retrieves the latest traded price
	GetRealTimeQuote(ctx context.Context, ticker string) (*models.RealTimeQuote, error)

	// GetSplits retrieves split events with effective dates in [from, to]
	GetSplits(ctx context.Context, ticker string, from, to time.Time) ([]models.SplitEvent, error)

	// GetFXRate retrieves the current rate for converting one unit of from into to
	GetFXRate(ctx context.Context, from, to string) (float64, error)
}
