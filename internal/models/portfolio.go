package models

import (
	"sort"
	"time"
)

// Holding represents an open position derived from the adjusted ledger.
// Quantity and AvgCost come from aggregation; the price fields may be
// replaced independently by a price refresh.
type Holding struct {
	Symbol        string      `json:"symbol"`
	Quantity      float64     `json:"quantity"`
	AvgCost       float64     `json:"avg_cost"`
	CurrentPrice  float64     `json:"current_price"`
	MarketValue   float64     `json:"market_value"`
	UnrealizedPnL float64     `json:"unrealized_pnl"`
	Currency      string      `json:"currency"`
	PriceStatus   PriceStatus `json:"price_status"`
	PriceAsOf     time.Time   `json:"price_as_of,omitempty"`
}

// Priced reports whether the holding's price-derived fields are meaningful.
func (h Holding) Priced() bool {
	return h.PriceStatus != PriceStatusUnavailable
}

// WithQuote returns a copy of h with price-derived fields recomputed from q.
// Quantity and AvgCost are left untouched. An unavailable quote zeroes the
// derived fields and marks the holding unpriced.
func (h Holding) WithQuote(q Quote) Holding {
	if !q.Available() {
		h.CurrentPrice = 0
		h.MarketValue = 0
		h.UnrealizedPnL = 0
		h.PriceStatus = PriceStatusUnavailable
		h.PriceAsOf = time.Time{}
		return h
	}
	h.CurrentPrice = q.Price
	h.MarketValue = h.Quantity * q.Price
	h.UnrealizedPnL = (q.Price - h.AvgCost) * h.Quantity
	h.PriceStatus = q.Status
	h.PriceAsOf = q.AsOf
	return h
}

// Holdings maps symbol to holding. Values are copied on every update so a
// Holdings value handed to a reader is never mutated afterwards.
type Holdings map[string]Holding

// Symbols returns the held symbols sorted alphabetically.
func (hs Holdings) Symbols() []string {
	out := make([]string, 0, len(hs))
	for s := range hs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Clone returns a shallow copy of the map.
func (hs Holdings) Clone() Holdings {
	out := make(Holdings, len(hs))
	for k, v := range hs {
		out[k] = v
	}
	return out
}

// CashflowPoint is one dated cashflow fed to the XIRR solver.
// Negative amounts are capital outflows (buys).
type CashflowPoint struct {
	Amount float64   `json:"amount"`
	Date   time.Time `json:"date"`
}

// PortfolioSummary is the portfolio-level view across tracked currencies
type PortfolioSummary struct {
	TotalHoldings      int                `json:"total_holdings"`
	BaseCurrency       string             `json:"base_currency"`
	TotalValue         map[string]float64 `json:"total_value"` // keyed by tracked currency
	TotalUnrealizedPnL float64            `json:"total_unrealized_pnl"`
	TopHoldings        []Holding          `json:"top_holdings"`
	Incomplete         bool               `json:"incomplete"`
	Unpriced           []string           `json:"unpriced,omitempty"`    // symbols without a usable quote
	Unconverted        []string           `json:"unconverted,omitempty"` // symbols or currencies that could not be converted
	AsOf               time.Time          `json:"as_of"`
}
