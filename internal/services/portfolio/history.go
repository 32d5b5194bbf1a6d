package portfolio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/folio/internal/models"
)

// DefaultHistoryDays is the look-back used when History is asked for none
const DefaultHistoryDays = 90

// History returns one point per calendar day over the last days days,
// ending today. Each point is the sum over current holdings of the net
// adjusted quantity held at the end of that day times the holding's
// current price, in the base currency. Unpriced and unconvertible holdings
// are left out of every point and the series is flagged incomplete.
//
// When currency differs from the base the whole series is scaled by one
// rate; if that rate is unavailable the call fails.
func (s *Service) History(ctx context.Context, days int, currency string) (*models.ValueHistory, error) {
	snap, err := s.published()
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = DefaultHistoryDays
	}

	base := s.opts.BaseCurrency
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = base
	}

	scale := 1.0
	if currency != base {
		scale, err = s.converter.Rate(ctx, base, currency)
		if err != nil {
			return nil, fmt.Errorf("value history in %s: %w", currency, err)
		}
	}

	out := &models.ValueHistory{Currency: currency}

	// Base-currency price per held symbol
	symbols := snap.holdings.Symbols()
	prices := make(map[string]float64)
	for _, symbol := range symbols {
		h := snap.holdings[symbol]
		if !h.Priced() {
			out.Unpriced = append(out.Unpriced, symbol)
			continue
		}
		rate, err := s.converter.Rate(ctx, h.Currency, base)
		if err != nil {
			out.Unconverted = append(out.Unconverted, symbol)
			continue
		}
		prices[symbol] = h.CurrentPrice * rate
	}
	out.Incomplete = len(out.Unpriced) > 0 || len(out.Unconverted) > 0

	end := models.TruncateDay(snap.asOf)
	start := end.AddDate(0, 0, -days)
	out.Points = make([]models.ValuePoint, 0, days+1)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		value := 0.0
		for _, symbol := range symbols {
			if price, ok := prices[symbol]; ok {
				value += QuantityAsOf(snap.bySymbol[symbol], day) * price
			}
		}
		out.Points = append(out.Points, models.ValuePoint{Date: day, Value: value * scale})
	}
	return out, nil
}

// QuantityAsOf is the net adjusted quantity held at the end of day.
// Positions that were net short on that day count as zero.
func QuantityAsOf(trades []models.TradeRecord, day time.Time) float64 {
	qty := 0.0
	for _, t := range trades {
		if t.Day().After(day) {
			continue
		}
		qty += t.AdjustedQuantity
	}
	if qty < 0 {
		return 0
	}
	return qty
}
