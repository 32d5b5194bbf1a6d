package main

import (
	"strings"
	"testing"
	"time"

	"github.com/bobmcallan/folio/internal/models"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		v    float64
		code string
		want string
	}{
		{1234.5, "USD", "$1,234.50"},
		{0.005, "usd", "$0.01"},
		{-20, "USD", "-$20.00"},
		{12.5, "XYZ", "12.50 XYZ"},
	}
	for _, tt := range tests {
		if got := formatMoney(tt.v, tt.code); got != tt.want {
			t.Errorf("formatMoney(%v, %q) = %q, want %q", tt.v, tt.code, got, tt.want)
		}
	}
}

func TestFormatSummary_IncompleteListsGaps(t *testing.T) {
	s := &models.PortfolioSummary{
		TotalHoldings: 3,
		BaseCurrency:  "USD",
		TotalValue:    map[string]float64{"USD": 5500, "SGD": 7333.33},
		TopHoldings: []models.Holding{
			{Symbol: "AAPL", Quantity: 10, CurrentPrice: 200, MarketValue: 2000, UnrealizedPnL: 1000, Currency: "USD", PriceStatus: models.PriceStatusLive},
			{Symbol: "MSFT", Quantity: 2, CurrentPrice: 400, MarketValue: 800, Currency: "USD", PriceStatus: models.PriceStatusStale},
		},
		Incomplete:  true,
		Unpriced:    []string{"ZZZZ"},
		Unconverted: []string{"D05"},
		AsOf:        time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC),
	}

	out := formatSummary(s)

	for _, want := range []string{
		"**Total Value (USD):** $5,500.00",
		"| AAPL | 10 | $200.00 | $2,000.00 | +$1,000.00 |",
		"$400.00 (stale)",
		"- no price: ZZZZ",
		"- no exchange rate: D05",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q\n%s", want, out)
		}
	}
	if strings.Index(out, "(USD)") > strings.Index(out, "(SGD)") {
		t.Error("base currency total should be listed first")
	}
}

func TestFormatDetailedHoldings_NullXIRR(t *testing.T) {
	x := 12.3456
	dh := &models.DetailedHoldings{
		BaseCurrency:        "USD",
		TotalPortfolioValue: 1100,
		Holdings: map[string]models.HoldingDetail{
			"AAPL": {Holding: models.Holding{Symbol: "AAPL", Quantity: 10, AvgCost: 100, CurrentPrice: 110, MarketValue: 1100, Currency: "USD"}, XIRRPct: &x},
			"DEAD": {Holding: models.Holding{Symbol: "DEAD", Quantity: 1, Currency: "USD", PriceStatus: models.PriceStatusUnavailable}},
		},
		Incomplete: true,
	}

	out := formatDetailedHoldings(dh)

	if !strings.Contains(out, "+12.35%") {
		t.Errorf("expected XIRR percentage in output:\n%s", out)
	}
	if !strings.Contains(out, "| DEAD | 1 | $0.00 | unavailable | $0.00 | $0.00 | n/a |") {
		t.Errorf("expected unavailable row for DEAD:\n%s", out)
	}
	if strings.Index(out, "AAPL") > strings.Index(out, "DEAD") {
		t.Error("holdings should be sorted by symbol")
	}
}

func TestFormatSplits(t *testing.T) {
	a := &models.SplitsAnalysis{
		TotalSplits:    1,
		AffectedStocks: 1,
		TradesAdjusted: 2,
		Splits: []models.SplitAudit{
			{Symbol: "AAPL", Date: time.Date(2020, 8, 31, 0, 0, 0, 0, time.UTC), Ratio: 4, PriceBefore: 440, PriceAfter: 121, ExpectedAfterPrice: 110, TradesAffected: 2, Effectiveness: 10},
		},
		Failed: []string{"XYZ"},
	}

	out := formatSplits(a)
	if !strings.Contains(out, "| AAPL | 2020-08-31 | 4:1 | 440.00 | 121.00 | 110.00 | 2 | 10.0% |") {
		t.Errorf("unexpected split row:\n%s", out)
	}
	if !strings.Contains(out, "XYZ") {
		t.Error("failed lookups should be listed")
	}
}

func TestFormatTrades(t *testing.T) {
	tr := models.NewTradeRecord("NVDA", time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC), 10, 520, "USD")
	tr.ApplySplit(4)
	tr.Source = "ibkr.csv"

	out := formatTrades([]models.TradeRecord{tr})
	if !strings.Contains(out, "| 2021-01-04 | NVDA | 10 | $520.00 | 40 | $130.00 | ibkr.csv |") {
		t.Errorf("unexpected trade row:\n%s", out)
	}
	if got := formatTrades(nil); got != "# Trades (0)\n\n" {
		t.Errorf("empty ledger = %q", got)
	}
}
