// Package models defines data structures for Folio
package models

import (
	"sort"
	"time"
)

// RealTimeQuote holds a live price snapshot from a market data client
type RealTimeQuote struct {
	Code          string    `json:"code"`
	Close         float64   `json:"close"` // current/last price
	PreviousClose float64   `json:"previous_close"`
	Currency      string    `json:"currency,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source,omitempty"` // "yahoo" or "eodhd"
}

// SplitEvent is a forward stock split. Ratio is the share multiplier,
// 4.0 for a 4-for-1 split and 0.1 for a 1-for-10 reverse split.
type SplitEvent struct {
	Symbol        string    `json:"symbol"`
	EffectiveDate time.Time `json:"effective_date"`
	Ratio         float64   `json:"ratio"`
}

// SortSplits orders split events by effective date ascending.
func SortSplits(events []SplitEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].EffectiveDate.Before(events[j].EffectiveDate)
	})
}

// PriceStatus describes how trustworthy a quote is
type PriceStatus string

const (
	PriceStatusLive        PriceStatus = "live"
	PriceStatusStale       PriceStatus = "stale"       // last known good value, the latest fetch failed
	PriceStatusUnavailable PriceStatus = "unavailable" // no value at all; Price must not be used
)

// Quote is the gateway's answer for the latest price of a symbol.
// A Quote is never fabricated: when nothing could be fetched Status is
// PriceStatusUnavailable and Price is zero.
type Quote struct {
	Symbol string      `json:"symbol"`
	Price  float64     `json:"price"`
	AsOf   time.Time   `json:"as_of"`
	Status PriceStatus `json:"status"`
	Source string      `json:"source,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// Available reports whether the quote carries a usable price.
func (q Quote) Available() bool {
	return q.Status != PriceStatusUnavailable && q.Price > 0
}

// UnavailableQuote builds a quote for a symbol whose price could not be obtained.
func UnavailableQuote(symbol, reason string) Quote {
	return Quote{Symbol: symbol, Status: PriceStatusUnavailable, Reason: reason}
}

// LookupKind names a cached gateway fetch. Cache entries are keyed by
// symbol and kind so a refresh can drop one without touching the other.
type LookupKind string

const (
	LookupLatestPrice LookupKind = "latest_price"
	LookupSplits      LookupKind = "splits"
)
