package portfolio

import (
	"context"
	"sync"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Positions nets the adjusted ledger into open positions. Only symbols with
// a positive net quantity are returned; avg cost is buy-side adjusted
// cashflow over buy-side adjusted quantity, so sells never move it. The
// currency is taken from the symbol's first trade. Price fields are left
// unavailable for Aggregator to fill.
func Positions(trades []models.TradeRecord) models.Holdings {
	type acc struct {
		buyQty, sellQty, buyCost float64
		currency                 string
	}
	accs := make(map[string]*acc)

	for _, t := range trades {
		a, ok := accs[t.Symbol]
		if !ok {
			a = &acc{currency: t.Currency}
			accs[t.Symbol] = a
		}
		switch {
		case t.IsBuy():
			a.buyQty += t.AdjustedQuantity
			a.buyCost += t.AdjustedCashflow()
		case t.IsSell():
			a.sellQty -= t.AdjustedQuantity
		}
	}

	out := make(models.Holdings)
	for symbol, a := range accs {
		net := a.buyQty - a.sellQty
		if net <= 0 || a.buyQty <= 0 {
			continue
		}
		out[symbol] = models.Holding{
			Symbol:      symbol,
			Quantity:    net,
			AvgCost:     a.buyCost / a.buyQty,
			Currency:    a.currency,
			PriceStatus: models.PriceStatusUnavailable,
		}
	}
	return out
}

// Aggregator turns the adjusted ledger into priced holdings
type Aggregator struct {
	gateway   interfaces.QuoteGateway
	scheduler *common.Scheduler
	logger    *common.Logger
}

// NewAggregator creates a holdings aggregator
func NewAggregator(gateway interfaces.QuoteGateway, scheduler *common.Scheduler, logger *common.Logger) *Aggregator {
	return &Aggregator{gateway: gateway, scheduler: scheduler, logger: logger}
}

// Aggregate computes positions from trades and prices each one through
// the gateway. A symbol without a quote stays in the result, marked
// unavailable, so coverage gaps are visible to the caller.
func (a *Aggregator) Aggregate(ctx context.Context, trades []models.TradeRecord) (models.Holdings, error) {
	positions := Positions(trades)
	return a.price(ctx, positions, false)
}

// Refresh re-fetches the latest price of every holding and recomputes
// only the price-derived fields. A holding whose refetch fails keeps its
// previous price, marked stale. The input is never modified.
func (a *Aggregator) Refresh(ctx context.Context, holdings models.Holdings) (models.Holdings, error) {
	for _, symbol := range holdings.Symbols() {
		a.gateway.Invalidate(symbol, models.LookupLatestPrice)
	}
	return a.price(ctx, holdings, true)
}

func (a *Aggregator) price(ctx context.Context, holdings models.Holdings, keepPrevious bool) (models.Holdings, error) {
	out := holdings.Clone()
	var mu sync.Mutex

	err := a.scheduler.Run(ctx, holdings.Symbols(), func(ctx context.Context, symbol string) {
		q := a.gateway.LatestPrice(ctx, symbol)

		mu.Lock()
		defer mu.Unlock()
		prev := out[symbol]
		if !q.Available() {
			if keepPrevious && prev.Priced() && prev.CurrentPrice > 0 {
				out[symbol] = prev.WithQuote(models.Quote{
					Symbol: symbol,
					Price:  prev.CurrentPrice,
					AsOf:   prev.PriceAsOf,
					Status: models.PriceStatusStale,
				})
				a.logger.Warn().Str("symbol", symbol).Str("reason", q.Reason).Msg("Price refresh failed, keeping previous price")
				return
			}
			a.logger.Warn().Str("symbol", symbol).Str("reason", q.Reason).Msg("No price available, holding left unpriced")
		}
		out[symbol] = prev.WithQuote(q)
		if q.Available() {
			a.logger.Debug().Str("symbol", symbol).Float64("price", q.Price).Str("status", string(q.Status)).Msg("Priced holding")
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
