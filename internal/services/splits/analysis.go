package splits

import (
	"math"
	"sort"

	"github.com/bobmcallan/folio/internal/models"
)

// Analyze builds the split audit from the raw trade prices around every
// applied split. Price before is the last raw price before the split day;
// price after is the first raw price on or after it, or price before over
// ratio when no later trade exists. Audits are sorted newest first.
func Analyze(trades []models.TradeRecord, report *Report) *models.SplitsAnalysis {
	out := &models.SplitsAnalysis{Splits: []models.SplitAudit{}}
	if report == nil {
		return out
	}
	out.Failed = append(out.Failed, report.Failed...)

	bySymbol := models.TradesBySymbol(trades)
	symbols := make([]string, 0, len(report.Applied))
	for s := range report.Applied {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	affected := make(map[string]bool)
	for _, symbol := range symbols {
		symbolTrades := bySymbol[symbol]
		for _, ev := range report.Applied[symbol] {
			audit := auditSplit(symbol, symbolTrades, ev)
			out.Splits = append(out.Splits, audit)
			out.TradesAdjusted += audit.TradesAffected
			affected[symbol] = true
		}
	}

	sort.SliceStable(out.Splits, func(i, j int) bool {
		return out.Splits[i].Date.After(out.Splits[j].Date)
	})

	out.TotalSplits = len(out.Splits)
	out.AffectedStocks = len(affected)
	for _, a := range out.Splits {
		out.ChartData.Symbols = append(out.ChartData.Symbols, a.Symbol)
		out.ChartData.BeforePrices = append(out.ChartData.BeforePrices, a.PriceBefore)
		out.ChartData.AfterPrices = append(out.ChartData.AfterPrices, a.PriceAfter)
		out.ChartData.Ratios = append(out.ChartData.Ratios, a.Ratio)
	}
	return out
}

// auditSplit expects trades in timestamp order
func auditSplit(symbol string, trades []models.TradeRecord, ev models.SplitEvent) models.SplitAudit {
	day := models.TruncateDay(ev.EffectiveDate)
	a := models.SplitAudit{Symbol: symbol, Date: day, Ratio: ev.Ratio}

	found := false
	for _, t := range trades {
		if t.Day().Before(day) {
			a.PriceBefore = t.Price
			a.TradesAffected++
			continue
		}
		if !found {
			a.PriceAfter = t.Price
			found = true
		}
	}

	if a.PriceBefore > 0 && ev.Ratio > 0 {
		a.ExpectedAfterPrice = a.PriceBefore / ev.Ratio
		if a.PriceAfter == 0 {
			a.PriceAfter = a.ExpectedAfterPrice
		}
		a.Effectiveness = math.Abs(a.PriceAfter-a.ExpectedAfterPrice) / a.ExpectedAfterPrice * 100
	}
	return a
}
