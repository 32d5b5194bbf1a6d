package portfolio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

// stubGateway serves fixed prices and splits. Symbols in down have no quote.
type stubGateway struct {
	mu          sync.Mutex
	prices      map[string]float64
	splits      map[string][]models.SplitEvent
	down        map[string]bool
	invalidated []string
	priceCalls  map[string]int
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		prices:     map[string]float64{},
		splits:     map[string][]models.SplitEvent{},
		down:       map[string]bool{},
		priceCalls: map[string]int{},
	}
}

func (g *stubGateway) LatestPrice(_ context.Context, symbol string) models.Quote {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.priceCalls[symbol]++
	p, ok := g.prices[symbol]
	if !ok || g.down[symbol] {
		return models.UnavailableQuote(symbol, "no data")
	}
	return models.Quote{Symbol: symbol, Price: p, Status: models.PriceStatusLive, AsOf: time.Now()}
}

func (g *stubGateway) Splits(_ context.Context, symbol string, _, _ time.Time) ([]models.SplitEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.splits[symbol], nil
}

func (g *stubGateway) IsTradeable(string) bool { return true }

func (g *stubGateway) Invalidate(symbol string, kind models.LookupKind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if kind == models.LookupLatestPrice {
		g.invalidated = append(g.invalidated, symbol)
	}
}

func (g *stubGateway) setPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price
}

func (g *stubGateway) setDown(symbol string, down bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.down[symbol] = down
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func trade(symbol string, ts time.Time, qty, price float64, ccy string) models.TradeRecord {
	return models.NewTradeRecord(symbol, ts, qty, price, ccy)
}

func newTestAggregator(g *stubGateway) *Aggregator {
	return NewAggregator(g, &common.Scheduler{Concurrency: 4}, common.NewSilentLogger())
}

func TestPositions_AverageCostFromBuysOnly(t *testing.T) {
	trades := []models.TradeRecord{
		trade("AAPL", day(2023, 1, 1), 10, 100, "USD"),
		trade("AAPL", day(2023, 2, 1), 10, 200, "USD"),
	}
	h := Positions(trades)["AAPL"]
	assert.Equal(t, 20.0, h.Quantity)
	assert.InDelta(t, 150.0, h.AvgCost, 1e-9)

	// A sell reduces quantity but leaves avg cost alone
	trades = append(trades, trade("AAPL", day(2023, 3, 1), -5, 500, "USD"))
	h = Positions(trades)["AAPL"]
	assert.Equal(t, 15.0, h.Quantity)
	assert.InDelta(t, 150.0, h.AvgCost, 1e-9)
}

func TestPositions_ClosedAndShortOmitted(t *testing.T) {
	trades := []models.TradeRecord{
		trade("MSFT", day(2023, 1, 1), 10, 250, "USD"),
		trade("MSFT", day(2023, 6, 1), -10, 300, "USD"),
		trade("TSLA", day(2023, 1, 1), 5, 100, "USD"),
		trade("TSLA", day(2023, 2, 1), -8, 120, "USD"),
		trade("GME", day(2023, 1, 1), -3, 20, "USD"),
		trade("D05", day(2023, 1, 1), 100, 32, "SGD"),
	}
	hs := Positions(trades)

	assert.Equal(t, []string{"D05"}, hs.Symbols())
	assert.Equal(t, "SGD", hs["D05"].Currency)
	assert.False(t, hs["D05"].Priced())
}

func TestPositions_UsesAdjustedQuantities(t *testing.T) {
	tr := trade("NVDA", day(2020, 1, 2), 100, 40, "USD")
	tr.ApplySplit(2)
	tr.ApplySplit(2)
	hs := Positions([]models.TradeRecord{tr, trade("NVDA", day(2025, 1, 2), -100, 130, "USD")})

	assert.Equal(t, 300.0, hs["NVDA"].Quantity)
	assert.InDelta(t, 10.0, hs["NVDA"].AvgCost, 1e-9)
}

func TestPositions_CurrencyFromFirstTrade(t *testing.T) {
	hs := Positions([]models.TradeRecord{
		trade("BABA", day(2023, 1, 1), 1, 90, "USD"),
		trade("BABA", day(2023, 2, 1), 1, 700, "HKD"),
	})
	assert.Equal(t, "USD", hs["BABA"].Currency)
}

func TestAggregate_PricesHoldings(t *testing.T) {
	g := newStubGateway()
	g.setPrice("AAPL", 200)
	trades := []models.TradeRecord{
		trade("AAPL", day(2023, 1, 1), 10, 100, "USD"),
		trade("AAPL", day(2023, 2, 1), 10, 200, "USD"),
		trade("DEAD", day(2023, 1, 1), 10, 5, "USD"),
	}

	hs, err := newTestAggregator(g).Aggregate(context.Background(), trades)
	require.NoError(t, err)
	require.Len(t, hs, 2)

	aapl := hs["AAPL"]
	assert.Equal(t, 200.0, aapl.CurrentPrice)
	assert.InDelta(t, 4000.0, aapl.MarketValue, 1e-9)
	assert.InDelta(t, 1000.0, aapl.UnrealizedPnL, 1e-9)
	assert.Equal(t, models.PriceStatusLive, aapl.PriceStatus)

	dead := hs["DEAD"]
	assert.False(t, dead.Priced())
	assert.Zero(t, dead.MarketValue)
	assert.Equal(t, 10.0, dead.Quantity)
}

func TestRefresh_OnlyPriceFieldsChange(t *testing.T) {
	g := newStubGateway()
	g.setPrice("AAPL", 200)
	g.setPrice("MSFT", 300)
	trades := []models.TradeRecord{
		trade("AAPL", day(2023, 1, 1), 20, 150, "USD"),
		trade("MSFT", day(2023, 1, 1), 5, 250, "USD"),
	}
	agg := newTestAggregator(g)

	before, err := agg.Aggregate(context.Background(), trades)
	require.NoError(t, err)

	g.setPrice("AAPL", 210)
	g.setDown("MSFT", true)
	after, err := agg.Refresh(context.Background(), before)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, g.invalidated)

	for _, s := range []string{"AAPL", "MSFT"} {
		assert.Equal(t, before[s].Quantity, after[s].Quantity, s)
		assert.Equal(t, before[s].AvgCost, after[s].AvgCost, s)
	}
	assert.Equal(t, 210.0, after["AAPL"].CurrentPrice)
	assert.InDelta(t, 1200.0, after["AAPL"].UnrealizedPnL, 1e-9)

	// Failed refetch keeps the previous price, flagged stale
	assert.Equal(t, 300.0, after["MSFT"].CurrentPrice)
	assert.Equal(t, models.PriceStatusStale, after["MSFT"].PriceStatus)

	// The input snapshot is untouched
	assert.Equal(t, 200.0, before["AAPL"].CurrentPrice)
	assert.Equal(t, models.PriceStatusLive, before["MSFT"].PriceStatus)
}

func TestRefresh_UnpricedStaysUnpriced(t *testing.T) {
	g := newStubGateway()
	agg := newTestAggregator(g)
	hs, err := agg.Aggregate(context.Background(), []models.TradeRecord{trade("X", day(2023, 1, 1), 1, 10, "USD")})
	require.NoError(t, err)

	after, err := agg.Refresh(context.Background(), hs)
	require.NoError(t, err)
	assert.False(t, after["X"].Priced())
	assert.Equal(t, 2, g.priceCalls["X"])
}
