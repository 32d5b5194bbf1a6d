package models

import (
	"sort"
	"time"
)

// TradeRecord is a single normalised brokerage trade.
// Quantity is signed: positive for buys, negative for sells.
// The Adjusted* fields start equal to the raw fields and are only
// rewritten by the split engine through ApplySplit.
type TradeRecord struct {
	Symbol           string    `json:"symbol"`
	Timestamp        time.Time `json:"timestamp"`
	Quantity         float64   `json:"quantity"`
	Price            float64   `json:"price"`
	Currency         string    `json:"currency"`
	AdjustedQuantity float64   `json:"adjusted_quantity"`
	AdjustedPrice    float64   `json:"adjusted_price"`
	SplitAdjusted    bool      `json:"split_adjusted"`
	Source           string    `json:"source,omitempty"` // originating file
}

// NewTradeRecord creates a trade with adjusted fields equal to the raw values.
func NewTradeRecord(symbol string, ts time.Time, quantity, price float64, currency string) TradeRecord {
	return TradeRecord{
		Symbol:           symbol,
		Timestamp:        ts,
		Quantity:         quantity,
		Price:            price,
		Currency:         currency,
		AdjustedQuantity: quantity,
		AdjustedPrice:    price,
	}
}

// AdjustedCashflow is adjusted quantity times adjusted price (signed like the quantity).
func (t TradeRecord) AdjustedCashflow() float64 {
	return t.AdjustedQuantity * t.AdjustedPrice
}

// IsBuy reports whether the trade adds shares.
func (t TradeRecord) IsBuy() bool {
	return t.AdjustedQuantity > 0
}

// IsSell reports whether the trade removes shares.
func (t TradeRecord) IsSell() bool {
	return t.AdjustedQuantity < 0
}

// ApplySplit scales quantity by ratio and price by 1/ratio, preserving
// AdjustedCashflow. Non-positive ratios are ignored.
func (t *TradeRecord) ApplySplit(ratio float64) {
	if ratio <= 0 {
		return
	}
	t.AdjustedQuantity *= ratio
	t.AdjustedPrice /= ratio
	t.SplitAdjusted = true
}

// Day returns the calendar day of the trade at midnight UTC.
func (t TradeRecord) Day() time.Time {
	return TruncateDay(t.Timestamp)
}

// TruncateDay drops the time-of-day component, keeping the calendar date.
func TruncateDay(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SortTrades orders trades by timestamp ascending, keeping input order for ties.
func SortTrades(trades []TradeRecord) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})
}

// TradesBySymbol groups trades by symbol, preserving order within each group.
func TradesBySymbol(trades []TradeRecord) map[string][]TradeRecord {
	out := make(map[string][]TradeRecord)
	for _, t := range trades {
		out[t.Symbol] = append(out[t.Symbol], t)
	}
	return out
}

// Symbols returns the distinct symbols in trades, in order of first appearance.
func Symbols(trades []TradeRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range trades {
		if _, ok := seen[t.Symbol]; ok {
			continue
		}
		seen[t.Symbol] = struct{}{}
		out = append(out, t.Symbol)
	}
	return out
}
