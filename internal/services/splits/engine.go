// Package splits rewrites historical trade quantities and prices so that
// trades on either side of a stock split are directly comparable.
package splits

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Report records what an adjustment pass did
type Report struct {
	Applied        map[string][]models.SplitEvent // in-window events per symbol, ascending
	Failed         []string                       // symbols whose split lookup failed; left unadjusted
	Skipped        []string                       // untradeable symbols, never looked up
	TradesAdjusted int                            // trades touched by at least one split
}

// Engine fetches split history through the gateway and applies it to the ledger
type Engine struct {
	gateway   interfaces.QuoteGateway
	scheduler *common.Scheduler
	logger    *common.Logger
}

// NewEngine creates a split adjustment engine
func NewEngine(gateway interfaces.QuoteGateway, scheduler *common.Scheduler, logger *common.Logger) *Engine {
	return &Engine{gateway: gateway, scheduler: scheduler, logger: logger}
}

// Adjust looks up splits for every symbol in trades and applies them in
// place. Lookups run concurrently; application is sequential and only
// starts once every lookup has finished. A failed lookup leaves that
// symbol's trades untouched and is recorded in Report.Failed.
func (e *Engine) Adjust(ctx context.Context, trades []models.TradeRecord) (*Report, error) {
	report := &Report{Applied: make(map[string][]models.SplitEvent)}
	if len(trades) == 0 {
		return report, nil
	}

	windows := Windows(trades)
	var symbols []string
	for _, s := range models.Symbols(trades) {
		if !e.gateway.IsTradeable(s) {
			e.logger.Debug().Str("symbol", s).Msg("Skipping split lookup for untradeable symbol")
			report.Skipped = append(report.Skipped, s)
			continue
		}
		symbols = append(symbols, s)
	}

	var mu sync.Mutex
	err := e.scheduler.Run(ctx, symbols, func(ctx context.Context, symbol string) {
		w := windows[symbol]
		events, err := e.gateway.Splits(ctx, symbol, w.First, w.Last)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			e.logger.Warn().Str("symbol", symbol).Err(err).Msg("Split lookup failed, trades left unadjusted")
			report.Failed = append(report.Failed, symbol)
			return
		}
		if in := w.Filter(events); len(in) > 0 {
			report.Applied[symbol] = in
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(report.Failed)

	adjusted := make(map[int]bool)
	for _, symbol := range symbols {
		for _, ev := range report.Applied[symbol] {
			n := Apply(trades, symbol, ev, adjusted)
			e.logger.Info().
				Str("symbol", symbol).
				Str("date", ev.EffectiveDate.Format("2006-01-02")).
				Float64("ratio", ev.Ratio).
				Int("trades", n).
				Msg("Applied split adjustment")
		}
	}
	report.TradesAdjusted = len(adjusted)

	return report, nil
}

// Apply scales every trade of symbol strictly earlier than the split's
// effective day. It returns the number of trades touched; indices of
// touched trades are recorded in seen when it is non-nil.
func Apply(trades []models.TradeRecord, symbol string, ev models.SplitEvent, seen map[int]bool) int {
	day := models.TruncateDay(ev.EffectiveDate)
	n := 0
	for i := range trades {
		if trades[i].Symbol != symbol || !trades[i].Timestamp.Before(day) {
			continue
		}
		trades[i].ApplySplit(ev.Ratio)
		n++
		if seen != nil {
			seen[i] = true
		}
	}
	return n
}

// Window is the calendar-day span of a symbol's trades
type Window struct {
	First time.Time
	Last  time.Time
}

// Contains reports whether a split day falls inside the window, inclusive
func (w Window) Contains(day time.Time) bool {
	day = models.TruncateDay(day)
	return !day.Before(w.First) && !day.After(w.Last)
}

// Filter keeps the events inside the window, sorted ascending
func (w Window) Filter(events []models.SplitEvent) []models.SplitEvent {
	var out []models.SplitEvent
	for _, ev := range events {
		if ev.Ratio > 0 && w.Contains(ev.EffectiveDate) {
			out = append(out, ev)
		}
	}
	models.SortSplits(out)
	return out
}

// Windows returns the trading window of every symbol in trades
func Windows(trades []models.TradeRecord) map[string]Window {
	out := make(map[string]Window)
	for _, t := range trades {
		day := t.Day()
		w, ok := out[t.Symbol]
		if !ok {
			out[t.Symbol] = Window{First: day, Last: day}
			continue
		}
		if day.Before(w.First) {
			w.First = day
		}
		if day.After(w.Last) {
			w.Last = day
		}
		out[t.Symbol] = w
	}
	return out
}
