package splits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/models"
)

func TestAnalyze_AuditFields(t *testing.T) {
	trades := []models.TradeRecord{
		trade("AAPL", day(2020, 6, 1), 10, 320),
		trade("AAPL", day(2020, 8, 3), 5, 440),
		trade("AAPL", day(2020, 9, 1), 5, 121),
		trade("NVDA", day(2021, 1, 4), 2, 520),
		trade("NVDA", day(2021, 8, 1), 2, 190),
	}
	report := &Report{
		Applied: map[string][]models.SplitEvent{
			"AAPL": {{Symbol: "AAPL", EffectiveDate: day(2020, 8, 31), Ratio: 4}},
			"NVDA": {{Symbol: "NVDA", EffectiveDate: day(2021, 7, 20), Ratio: 4}},
		},
		Failed: []string{"XYZ"},
	}

	a := Analyze(trades, report)

	require.Len(t, a.Splits, 2)
	assert.Equal(t, 2, a.TotalSplits)
	assert.Equal(t, 2, a.AffectedStocks)
	assert.Equal(t, 3, a.TradesAdjusted)
	assert.Equal(t, []string{"XYZ"}, a.Failed)

	// newest first
	nvda := a.Splits[0]
	assert.Equal(t, "NVDA", nvda.Symbol)
	assert.Equal(t, 520.0, nvda.PriceBefore)
	assert.Equal(t, 190.0, nvda.PriceAfter)
	assert.InDelta(t, 130.0, nvda.ExpectedAfterPrice, 1e-9)
	assert.InDelta(t, 60/130.0*100, nvda.Effectiveness, 1e-9)
	assert.Equal(t, 1, nvda.TradesAffected)

	aapl := a.Splits[1]
	assert.Equal(t, 440.0, aapl.PriceBefore, "last raw price before the split day")
	assert.Equal(t, 121.0, aapl.PriceAfter)
	assert.InDelta(t, 110.0, aapl.ExpectedAfterPrice, 1e-9)
	assert.InDelta(t, 10.0, aapl.Effectiveness, 1e-9)
	assert.Equal(t, 2, aapl.TradesAffected)

	assert.Equal(t, []string{"NVDA", "AAPL"}, a.ChartData.Symbols)
	assert.Equal(t, []float64{520, 440}, a.ChartData.BeforePrices)
	assert.Equal(t, []float64{4, 4}, a.ChartData.Ratios)
}

func TestAnalyze_NoTradeAfterSplitUsesExpected(t *testing.T) {
	trades := []models.TradeRecord{
		trade("TSLA", day(2022, 8, 1), 3, 900),
	}
	report := &Report{Applied: map[string][]models.SplitEvent{
		"TSLA": {{EffectiveDate: day(2022, 8, 1), Ratio: 3}},
	}}
	// A split on the only trade day has no trade strictly before it
	a := Analyze(trades, report)
	require.Len(t, a.Splits, 1)
	assert.Zero(t, a.Splits[0].PriceBefore)
	assert.Equal(t, 900.0, a.Splits[0].PriceAfter)
	assert.Zero(t, a.Splits[0].Effectiveness)

	trades = append(trades, trade("TSLA", day(2022, 8, 20), 1, 890))
	report.Applied["TSLA"] = []models.SplitEvent{{EffectiveDate: day(2022, 8, 20).AddDate(0, 0, 1), Ratio: 3}}
	a = Analyze(trades, report)
	require.Len(t, a.Splits, 1)
	assert.Equal(t, 890.0, a.Splits[0].PriceBefore)
	assert.InDelta(t, 890.0/3, a.Splits[0].PriceAfter, 1e-9)
	assert.Zero(t, a.Splits[0].Effectiveness)
}

func TestAnalyze_NilReport(t *testing.T) {
	a := Analyze(nil, nil)
	assert.Zero(t, a.TotalSplits)
	assert.NotNil(t, a.Splits)
}
