// Package fx converts amounts between currencies with direct, inverse and
// pivot rate lookups over a day-scoped rate cache.
package fx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// DefaultPivot is the intermediate currency for cross conversions
const DefaultPivot = "USD"

// Converter implements interfaces.CurrencyConverter.
//
// Rates are cached by ordered pair and calendar day for the life of the
// Converter and are never invalidated; a new day simply uses new keys.
// Only successful lookups are cached.
type Converter struct {
	source interfaces.RateSource
	pivot  string
	rates  *cache.Cache
	logger *common.Logger
	now    func() time.Time
}

// NewConverter creates a converter. source may be nil, in which case only
// seeded rates are available.
func NewConverter(source interfaces.RateSource, pivot string, logger *common.Logger) *Converter {
	pivot = strings.ToUpper(strings.TrimSpace(pivot))
	if pivot == "" {
		pivot = DefaultPivot
	}
	return &Converter{
		source: source,
		pivot:  pivot,
		rates:  cache.New(cache.NoExpiration, 0),
		logger: logger,
		now:    time.Now,
	}
}

func (c *Converter) key(from, to string) string {
	return from + to + "|" + c.now().Format("2006-01-02")
}

// SetRate seeds today's rate for an ordered pair
func (c *Converter) SetRate(from, to string, rate float64) {
	from, to = normalize(from), normalize(to)
	if rate <= 0 || from == to {
		return
	}
	c.rates.Set(c.key(from, to), rate, cache.NoExpiration)
}

// Convert converts amount from one currency to another. Same-currency
// requests return amount untouched without a lookup.
func (c *Converter) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	from, to = normalize(from), normalize(to)
	if from == to {
		return amount, nil
	}
	r, err := c.Rate(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return amount * r, nil
}

// Rate returns how many units of to one unit of from buys today. Lookup
// order is direct pair, inverse pair, then from→pivot→to when neither
// side is the pivot. Each pivot leg may itself resolve direct or inverse.
func (c *Converter) Rate(ctx context.Context, from, to string) (float64, error) {
	from, to = normalize(from), normalize(to)
	if from == to {
		return 1, nil
	}

	if r, ok := c.lookup(ctx, from, to); ok {
		return r, nil
	}
	if r, ok := c.lookup(ctx, to, from); ok {
		return 1 / r, nil
	}

	if from != c.pivot && to != c.pivot {
		c.logger.Debug().Str("from", from).Str("to", to).Str("pivot", c.pivot).Msg("Pivoting currency conversion")
		first, err := c.Rate(ctx, from, c.pivot)
		if err == nil {
			second, err := c.Rate(ctx, c.pivot, to)
			if err == nil {
				return first * second, nil
			}
		}
	}

	c.logger.Warn().Str("from", from).Str("to", to).Msg("Currency conversion unavailable")
	return 0, fmt.Errorf("%w: %s to %s", models.ErrConversionUnavailable, from, to)
}

// lookup returns the cached or freshly fetched rate for one ordered pair
func (c *Converter) lookup(ctx context.Context, from, to string) (float64, bool) {
	key := c.key(from, to)
	if v, ok := c.rates.Get(key); ok {
		return v.(float64), true
	}
	if c.source == nil {
		return 0, false
	}
	r, err := c.source.FXRate(ctx, from, to)
	if err != nil || r <= 0 {
		c.logger.Debug().Str("pair", from+to).Err(err).Msg("Rate lookup failed")
		return 0, false
	}
	c.rates.Set(key, r, cache.NoExpiration)
	return r, true
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Ensure Converter implements CurrencyConverter
var _ interfaces.CurrencyConverter = (*Converter)(nil)
