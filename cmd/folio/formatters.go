package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/models"
)

// formatMoney renders an amount with the currency's symbol, separators and
// minor-unit precision. Unknown codes fall back to "1234.56 XYZ".
func formatMoney(v float64, code string) string {
	code = strings.ToUpper(code)
	cur := money.GetCurrency(code)
	if cur == nil {
		return fmt.Sprintf("%.2f %s", v, code)
	}
	minor := decimal.NewFromFloat(v).Shift(int32(cur.Fraction)).Round(0).IntPart()
	return cur.Formatter().Format(minor)
}

// formatSignedMoney is formatMoney with an explicit + for gains
func formatSignedMoney(v float64, code string) string {
	if v > 0 {
		return "+" + formatMoney(v, code)
	}
	return formatMoney(v, code)
}

func formatPct(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", *p)
}

// formatPrice marks prices that are not live
func formatPrice(h models.Holding) string {
	switch h.PriceStatus {
	case models.PriceStatusUnavailable:
		return "unavailable"
	case models.PriceStatusStale:
		return formatMoney(h.CurrentPrice, h.Currency) + " (stale)"
	default:
		return formatMoney(h.CurrentPrice, h.Currency)
	}
}

func formatQty(q float64) string {
	return decimal.NewFromFloat(q).Round(4).String()
}

// formatSummary formats the portfolio summary as markdown
func formatSummary(s *models.PortfolioSummary) string {
	var sb strings.Builder

	sb.WriteString("# Portfolio Summary\n\n")
	sb.WriteString(fmt.Sprintf("**As of:** %s\n", s.AsOf.Format("2006-01-02 15:04")))
	sb.WriteString(fmt.Sprintf("**Holdings:** %d\n", s.TotalHoldings))

	currencies := make([]string, 0, len(s.TotalValue))
	for c := range s.TotalValue {
		currencies = append(currencies, c)
	}
	sort.Slice(currencies, func(i, j int) bool {
		// base currency first
		if (currencies[i] == s.BaseCurrency) != (currencies[j] == s.BaseCurrency) {
			return currencies[i] == s.BaseCurrency
		}
		return currencies[i] < currencies[j]
	})
	for _, c := range currencies {
		sb.WriteString(fmt.Sprintf("**Total Value (%s):** %s\n", c, formatMoney(s.TotalValue[c], c)))
	}
	sb.WriteString(fmt.Sprintf("**Unrealized P&L (%s):** %s\n\n", s.BaseCurrency, formatSignedMoney(s.TotalUnrealizedPnL, s.BaseCurrency)))

	if len(s.TopHoldings) > 0 {
		sb.WriteString("## Top Holdings\n\n")
		sb.WriteString("| Symbol | Qty | Price | Value | Unrealized P&L |\n")
		sb.WriteString("|--------|-----|-------|-------|----------------|\n")
		for _, h := range s.TopHoldings {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				h.Symbol, formatQty(h.Quantity), formatPrice(h),
				formatMoney(h.MarketValue, h.Currency), formatSignedMoney(h.UnrealizedPnL, h.Currency)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(formatCoverage(s.Incomplete, s.Unpriced, s.Unconverted))
	return sb.String()
}

// formatCoverage explains why a result is incomplete
func formatCoverage(incomplete bool, unpriced, unconverted []string) string {
	if !incomplete {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("**Incomplete:** totals exclude some holdings\n")
	if len(unpriced) > 0 {
		sb.WriteString(fmt.Sprintf("- no price: %s\n", strings.Join(unpriced, ", ")))
	}
	if len(unconverted) > 0 {
		sb.WriteString(fmt.Sprintf("- no exchange rate: %s\n", strings.Join(unconverted, ", ")))
	}
	sb.WriteString("\n")
	return sb.String()
}

// formatDetailedHoldings formats every holding with XIRR as a markdown table
func formatDetailedHoldings(dh *models.DetailedHoldings) string {
	var sb strings.Builder

	sb.WriteString("# Holdings\n\n")
	sb.WriteString("| Symbol | Qty | Avg Cost | Price | Value | Unrealized P&L | XIRR |\n")
	sb.WriteString("|--------|-----|----------|-------|-------|----------------|------|\n")

	symbols := make([]string, 0, len(dh.Holdings))
	for s := range dh.Holdings {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, s := range symbols {
		d := dh.Holdings[s]
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s |\n",
			d.Symbol, formatQty(d.Quantity), formatMoney(d.AvgCost, d.Currency), formatPrice(d.Holding),
			formatMoney(d.MarketValue, d.Currency), formatSignedMoney(d.UnrealizedPnL, d.Currency), formatPct(d.XIRRPct)))
	}
	sb.WriteString(fmt.Sprintf("| **Total** | | | | **%s** | | |\n\n", formatMoney(dh.TotalPortfolioValue, dh.BaseCurrency)))

	if dh.Incomplete {
		sb.WriteString("**Incomplete:** the total excludes holdings without a price or exchange rate\n\n")
	}
	return sb.String()
}

// formatHoldingDetail formats one holding and its adjusted trades
func formatHoldingDetail(d *models.HoldingDetail) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# %s\n\n", d.Symbol))
	sb.WriteString(fmt.Sprintf("**Quantity:** %s\n", formatQty(d.Quantity)))
	sb.WriteString(fmt.Sprintf("**Average Cost:** %s\n", formatMoney(d.AvgCost, d.Currency)))
	sb.WriteString(fmt.Sprintf("**Price:** %s\n", formatPrice(d.Holding)))
	sb.WriteString(fmt.Sprintf("**Market Value:** %s\n", formatMoney(d.MarketValue, d.Currency)))
	sb.WriteString(fmt.Sprintf("**Unrealized P&L:** %s\n", formatSignedMoney(d.UnrealizedPnL, d.Currency)))
	sb.WriteString(fmt.Sprintf("**XIRR:** %s\n", formatPct(d.XIRRPct)))
	sb.WriteString(fmt.Sprintf("**Trades:** %d (first %s, last %s)\n\n",
		d.TotalTrades, d.FirstPurchase.Format("2006-01-02"), d.LastTrade.Format("2006-01-02")))

	if len(d.Trades) > 0 {
		sb.WriteString("| Date | Qty | Price | Adj Qty | Adj Price | Split |\n")
		sb.WriteString("|------|-----|-------|---------|-----------|-------|\n")
		for _, t := range d.Trades {
			split := ""
			if t.SplitAdjusted {
				split = "yes"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
				t.Timestamp.Format("2006-01-02"), formatQty(t.Quantity), formatMoney(t.Price, t.Currency),
				formatQty(t.AdjustedQuantity), formatMoney(t.AdjustedPrice, t.Currency), split))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatTrades lists trades with their raw and adjusted fields
func formatTrades(trades []models.TradeRecord) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Trades (%d)\n\n", len(trades)))
	if len(trades) == 0 {
		return sb.String()
	}
	sb.WriteString("| Date | Symbol | Qty | Price | Adj Qty | Adj Price | Source |\n")
	sb.WriteString("|------|--------|-----|-------|---------|-----------|--------|\n")
	for _, t := range trades {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s |\n",
			t.Timestamp.Format("2006-01-02"), t.Symbol, formatQty(t.Quantity), formatMoney(t.Price, t.Currency),
			formatQty(t.AdjustedQuantity), formatMoney(t.AdjustedPrice, t.Currency), t.Source))
	}
	sb.WriteString("\n")
	return sb.String()
}

// formatSplits formats the split audit as markdown
func formatSplits(a *models.SplitsAnalysis) string {
	var sb strings.Builder

	sb.WriteString("# Split Adjustments\n\n")
	sb.WriteString(fmt.Sprintf("**Splits:** %d across %d stocks, %d trades adjusted\n\n",
		a.TotalSplits, a.AffectedStocks, a.TradesAdjusted))

	if len(a.Splits) > 0 {
		sb.WriteString("| Symbol | Date | Ratio | Price Before | Price After | Expected | Trades | Deviation |\n")
		sb.WriteString("|--------|------|-------|--------------|-------------|----------|--------|-----------|\n")
		for _, s := range a.Splits {
			sb.WriteString(fmt.Sprintf("| %s | %s | %g:1 | %.2f | %.2f | %.2f | %d | %.1f%% |\n",
				s.Symbol, s.Date.Format("2006-01-02"), s.Ratio,
				s.PriceBefore, s.PriceAfter, s.ExpectedAfterPrice, s.TradesAffected, s.Effectiveness))
		}
		sb.WriteString("\n")
	}

	if len(a.Failed) > 0 {
		sb.WriteString(fmt.Sprintf("**Lookup failed (unadjusted):** %s\n\n", strings.Join(a.Failed, ", ")))
	}
	return sb.String()
}

// formatHistory formats the value series as a two-column table
func formatHistory(h *models.ValueHistory) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Value History (%s)\n\n", h.Currency))
	sb.WriteString("| Date | Value |\n")
	sb.WriteString("|------|-------|\n")
	for _, p := range h.Points {
		sb.WriteString(fmt.Sprintf("| %s | %s |\n", p.Date.Format("2006-01-02"), formatMoney(p.Value, h.Currency)))
	}
	sb.WriteString("\n")
	sb.WriteString(formatCoverage(h.Incomplete, h.Unpriced, h.Unconverted))
	return sb.String()
}
