// Package portfolio values the split-adjusted trade ledger: holdings,
// currency totals, per-holding XIRR and value history.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/splits"
)

// ErrNotLoaded is returned by readers called before a successful Load
var ErrNotLoaded = errors.New("portfolio not loaded")

// Options controls currency and report shaping
type Options struct {
	BaseCurrency string
	Tracked      []string // currencies reported in the summary, base first
	TopN         int
}

// OptionsFromConfig builds Options from the loaded config
func OptionsFromConfig(cfg *common.Config) Options {
	return Options{
		BaseCurrency: cfg.Currency.Base,
		Tracked:      append([]string(nil), cfg.Currency.Tracked...),
		TopN:         cfg.Report.TopN,
	}
}

// snapshot is one consistent view of the portfolio. It is never mutated
// after being published; updates build and swap a new one.
type snapshot struct {
	runID    string
	trades   []models.TradeRecord
	bySymbol map[string][]models.TradeRecord
	holdings models.Holdings
	report   *splits.Report
	asOf     time.Time
}

// Service implements interfaces.PortfolioService
type Service struct {
	loader     interfaces.TradeLoader
	engine     *splits.Engine
	aggregator *Aggregator
	converter  interfaces.CurrencyConverter
	opts       Options
	logger     *common.Logger
	now        func() time.Time

	writeMu sync.Mutex // serialises Load and RefreshPrices
	current atomic.Pointer[snapshot]
}

// NewService creates a new portfolio service
func NewService(
	loader interfaces.TradeLoader,
	engine *splits.Engine,
	aggregator *Aggregator,
	converter interfaces.CurrencyConverter,
	opts Options,
	logger *common.Logger,
) *Service {
	if opts.BaseCurrency == "" {
		opts.BaseCurrency = "USD"
	}
	if len(opts.Tracked) == 0 {
		opts.Tracked = []string{opts.BaseCurrency}
	}
	if opts.TopN <= 0 {
		opts.TopN = 5
	}
	return &Service{
		loader:     loader,
		engine:     engine,
		aggregator: aggregator,
		converter:  converter,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// Load runs ledger ingestion, split adjustment and aggregation, then
// publishes the result. A failed run leaves the previous snapshot in place.
func (s *Service) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	runID := uuid.New().String()
	log := s.logger.WithField("run_id", runID)
	start := s.now()
	log.Info().Msg("Valuation run started")

	trades, err := s.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load trades: %w", err)
	}

	report, err := s.engine.Adjust(ctx, trades)
	if err != nil {
		return fmt.Errorf("failed to adjust splits: %w", err)
	}

	holdings, err := s.aggregator.Aggregate(ctx, trades)
	if err != nil {
		return fmt.Errorf("failed to aggregate holdings: %w", err)
	}

	s.current.Store(&snapshot{
		runID:    runID,
		trades:   trades,
		bySymbol: models.TradesBySymbol(trades),
		holdings: holdings,
		report:   report,
		asOf:     s.now(),
	})

	log.Info().
		Int("trades", len(trades)).
		Int("holdings", len(holdings)).
		Int("splits_failed", len(report.Failed)).
		Dur("elapsed", s.now().Sub(start)).
		Msg("Valuation run complete")
	return nil
}

// RefreshPrices re-prices the current holdings and publishes a snapshot
// that differs only in price-derived fields.
func (s *Service) RefreshPrices(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap := s.current.Load()
	if snap == nil {
		return ErrNotLoaded
	}

	log := s.logger.WithField("run_id", snap.runID)
	log.Info().Int("holdings", len(snap.holdings)).Msg("Refreshing prices")

	holdings, err := s.aggregator.Refresh(ctx, snap.holdings)
	if err != nil {
		return fmt.Errorf("failed to refresh prices: %w", err)
	}

	next := *snap
	next.holdings = holdings
	next.asOf = s.now()
	s.current.Store(&next)

	log.Info().Msg("Price refresh completed")
	return nil
}

func (s *Service) published() (*snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNotLoaded
	}
	return snap, nil
}

// Holdings returns a copy of the current holdings, empty before Load
func (s *Service) Holdings() models.Holdings {
	snap := s.current.Load()
	if snap == nil {
		return models.Holdings{}
	}
	return snap.holdings.Clone()
}

// Trades returns a copy of the adjusted ledger
func (s *Service) Trades() []models.TradeRecord {
	snap := s.current.Load()
	if snap == nil {
		return nil
	}
	return append([]models.TradeRecord(nil), snap.trades...)
}

// baseValue is a holding's market value and P&L in the base currency
type baseValue struct {
	holding   models.Holding
	value     decimal.Decimal
	pnl       decimal.Decimal
	converted bool
}

// toBase converts every priced holding into the base currency. Unpriced
// and unconvertible symbols are returned separately, sorted.
func (s *Service) toBase(ctx context.Context, holdings models.Holdings) (values []baseValue, unpriced, unconverted []string) {
	base := s.opts.BaseCurrency
	for _, symbol := range holdings.Symbols() {
		h := holdings[symbol]
		if !h.Priced() {
			unpriced = append(unpriced, symbol)
			values = append(values, baseValue{holding: h})
			continue
		}
		rate, err := s.converter.Rate(ctx, h.Currency, base)
		if err != nil {
			s.logger.Warn().Str("symbol", symbol).Str("currency", h.Currency).Err(err).Msg("Holding left out of base totals")
			unconverted = append(unconverted, symbol)
			values = append(values, baseValue{holding: h})
			continue
		}
		r := decimal.NewFromFloat(rate)
		values = append(values, baseValue{
			holding:   h,
			value:     decimal.NewFromFloat(h.MarketValue).Mul(r),
			pnl:       decimal.NewFromFloat(h.UnrealizedPnL).Mul(r),
			converted: true,
		})
	}
	return values, unpriced, unconverted
}

// Summary totals the portfolio in the base currency and every tracked
// currency. Holdings that could not be priced or converted are listed and
// set Incomplete rather than counted as zero.
func (s *Service) Summary(ctx context.Context) (*models.PortfolioSummary, error) {
	snap, err := s.published()
	if err != nil {
		return nil, err
	}

	values, unpriced, unconverted := s.toBase(ctx, snap.holdings)

	total, pnl := decimal.Zero, decimal.Zero
	for _, v := range values {
		if v.converted {
			total = total.Add(v.value)
			pnl = pnl.Add(v.pnl)
		}
	}

	summary := &models.PortfolioSummary{
		TotalHoldings:      len(snap.holdings),
		BaseCurrency:       s.opts.BaseCurrency,
		TotalValue:         make(map[string]float64, len(s.opts.Tracked)),
		TotalUnrealizedPnL: pnl.Round(2).InexactFloat64(),
		TopHoldings:        topHoldings(values, s.opts.TopN),
		Unpriced:           unpriced,
		Unconverted:        unconverted,
		AsOf:               snap.asOf,
	}

	for _, ccy := range s.opts.Tracked {
		if ccy == s.opts.BaseCurrency {
			summary.TotalValue[ccy] = total.Round(2).InexactFloat64()
			continue
		}
		rate, err := s.converter.Rate(ctx, s.opts.BaseCurrency, ccy)
		if err != nil {
			s.logger.Warn().Str("currency", ccy).Err(err).Msg("Total not available in tracked currency")
			summary.Unconverted = append(summary.Unconverted, ccy)
			continue
		}
		summary.TotalValue[ccy] = total.Mul(decimal.NewFromFloat(rate)).Round(2).InexactFloat64()
	}

	summary.Incomplete = len(summary.Unpriced) > 0 || len(summary.Unconverted) > 0
	return summary, nil
}

// topHoldings orders by base-currency market value, largest first.
// Holdings without a base value sort last, by symbol.
func topHoldings(values []baseValue, n int) []models.Holding {
	sorted := append([]baseValue(nil), values...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].converted != sorted[j].converted {
			return sorted[i].converted
		}
		if c := sorted[i].value.Cmp(sorted[j].value); c != 0 {
			return c > 0
		}
		return sorted[i].holding.Symbol < sorted[j].holding.Symbol
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	out := make([]models.Holding, n)
	for i := range out {
		out[i] = sorted[i].holding
	}
	return out
}

// detail builds the XIRR view of one holding. XIRR is only attempted for
// priced holdings; without a terminal value the cashflows are meaningless.
func (s *Service) detail(snap *snapshot, symbol string, withTrades bool) models.HoldingDetail {
	h := snap.holdings[symbol]
	trades := snap.bySymbol[symbol]
	d := models.HoldingDetail{Holding: h, TotalTrades: len(trades)}

	for i, t := range trades {
		if i == 0 || t.Timestamp.Before(d.FirstPurchase) {
			d.FirstPurchase = t.Timestamp
		}
		if t.Timestamp.After(d.LastTrade) {
			d.LastTrade = t.Timestamp
		}
	}
	if withTrades {
		d.Trades = append([]models.TradeRecord(nil), trades...)
	}

	if h.Priced() && h.MarketValue > 0 {
		if rate, ok := SolveCashflows(HoldingCashflows(trades, h.MarketValue, snap.asOf)); ok {
			pct := rate * 100
			d.XIRR = &rate
			d.XIRRPct = &pct
		} else {
			s.logger.Debug().Str("symbol", symbol).Err(models.ErrSolverDivergence).Msg("XIRR unavailable")
		}
	}
	return d
}

// HoldingDetail returns one holding with XIRR and its adjusted trade history
func (s *Service) HoldingDetail(_ context.Context, symbol string) (*models.HoldingDetail, error) {
	snap, err := s.published()
	if err != nil {
		return nil, err
	}
	if _, ok := snap.holdings[symbol]; !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSymbolNotHeld, symbol)
	}
	d := s.detail(snap, symbol, true)
	return &d, nil
}

// DetailedHoldings returns every holding with XIRR and the base-currency total
func (s *Service) DetailedHoldings(ctx context.Context) (*models.DetailedHoldings, error) {
	snap, err := s.published()
	if err != nil {
		return nil, err
	}

	out := &models.DetailedHoldings{
		Holdings:     make(map[string]models.HoldingDetail, len(snap.holdings)),
		BaseCurrency: s.opts.BaseCurrency,
	}
	for _, symbol := range snap.holdings.Symbols() {
		out.Holdings[symbol] = s.detail(snap, symbol, false)
	}

	values, unpriced, unconverted := s.toBase(ctx, snap.holdings)
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v.value)
	}
	out.TotalPortfolioValue = total.Round(2).InexactFloat64()
	out.Incomplete = len(unpriced) > 0 || len(unconverted) > 0
	return out, nil
}

// SplitsAnalysis audits the splits applied during the last Load
func (s *Service) SplitsAnalysis(_ context.Context) (*models.SplitsAnalysis, error) {
	snap, err := s.published()
	if err != nil {
		return nil, err
	}
	return splits.Analyze(snap.trades, snap.report), nil
}

// Ensure Service implements PortfolioService
var _ interfaces.PortfolioService = (*Service)(nil)
