// Package quote provides the cached, rate-limited and retrying gateway in
// front of a market data client.
package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// whitelist symbols are tradeable even if they trip a marker check
var whitelist = map[string]bool{"SPY": true, "QQQ": true, "VTI": true, "VOO": true}

// untradeableMarkers flag index, cash and foreign-listing identifiers
var untradeableMarkers = []string{"$", ".L", ".TO", "^"}

// permanentMarkers in an error message mean a retry cannot succeed
var permanentMarkers = []string{"delisted", "timezone", "not found"}

const maxSymbolLength = 6

// Policy is the resilience policy applied to every lookup
type Policy struct {
	Retries      int           // total attempts, at least 1
	BaseDelay    time.Duration // first backoff interval
	MaxDelay     time.Duration // backoff interval cap
	MinInterval  time.Duration // minimum spacing between requests for one symbol
	FetchTimeout time.Duration // bound on one lookup including retries
}

// PolicyFromConfig converts the gateway config section into a Policy
func PolicyFromConfig(cfg common.GatewayConfig) Policy {
	return Policy{
		Retries:      cfg.Retries,
		BaseDelay:    cfg.GetBaseDelay(),
		MaxDelay:     cfg.GetMaxDelay(),
		MinInterval:  cfg.GetMinInterval(),
		FetchTimeout: cfg.GetFetchTimeout(),
	}
}

// Service implements interfaces.QuoteGateway and interfaces.RateSource.
//
// Successful lookups are cached per symbol and lookup kind for the life of
// the Service and are only dropped through Invalidate. The last good quote
// per symbol is kept separately and is never invalidated, so a refresh that
// fails can still serve a value marked stale.
type Service struct {
	client    interfaces.MarketDataClient
	policy    Policy
	logger    *common.Logger
	cache     *cache.Cache
	lastKnown *cache.Cache

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	now func() time.Time
}

// NewService creates a new quote gateway
func NewService(client interfaces.MarketDataClient, policy Policy, logger *common.Logger) *Service {
	if policy.Retries < 1 {
		policy.Retries = 1
	}
	return &Service{
		client:    client,
		policy:    policy,
		logger:    logger,
		cache:     cache.New(cache.NoExpiration, 0),
		lastKnown: cache.New(cache.NoExpiration, 0),
		limiters:  make(map[string]*rate.Limiter),
		now:       time.Now,
	}
}

func cacheKey(symbol string, kind models.LookupKind) string {
	return strings.ToUpper(symbol) + "|" + string(kind)
}

// IsTradeable screens out identifiers that should never reach the network:
// empty symbols, symbols longer than six characters and index, cash or
// foreign-listing markers. SPY, QQQ, VTI and VOO are always allowed.
func (s *Service) IsTradeable(symbol string) bool {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return false
	}
	if whitelist[strings.ToUpper(symbol)] {
		return true
	}
	for _, m := range untradeableMarkers {
		if strings.Contains(symbol, m) {
			return false
		}
	}
	return len(symbol) <= maxSymbolLength
}

// Invalidate drops one cached lookup. The last-known quote is kept.
func (s *Service) Invalidate(symbol string, kind models.LookupKind) {
	s.cache.Delete(cacheKey(symbol, kind))
}

// LatestPrice returns the latest quote for symbol. It never fails: when
// nothing can be fetched the last good value is served as stale, or an
// unavailable quote with a zero price when there is none.
func (s *Service) LatestPrice(ctx context.Context, symbol string) models.Quote {
	if !s.IsTradeable(symbol) {
		s.logger.Info().Str("symbol", symbol).Msg("Skipping untradeable symbol")
		return models.UnavailableQuote(symbol, models.ErrUntradeable.Error())
	}

	key := cacheKey(symbol, models.LookupLatestPrice)
	if v, ok := s.cache.Get(key); ok {
		return v.(models.Quote)
	}

	var rt *models.RealTimeQuote
	err := s.retry(ctx, symbol, func(ctx context.Context) error {
		var err error
		rt, err = s.client.GetRealTimeQuote(ctx, symbol)
		return err
	})
	if err == nil && rt != nil && rt.Close > 0 {
		asOf := rt.Timestamp
		if asOf.IsZero() {
			asOf = s.now()
		}
		q := models.Quote{
			Symbol: symbol,
			Price:  rt.Close,
			AsOf:   asOf,
			Status: models.PriceStatusLive,
			Source: rt.Source,
		}
		s.cache.Set(key, q, cache.NoExpiration)
		s.lastKnown.Set(strings.ToUpper(symbol), q, cache.NoExpiration)
		return q
	}
	if err == nil {
		err = fmt.Errorf("%w: empty quote", models.ErrQuoteUnavailable)
	}

	if v, ok := s.lastKnown.Get(strings.ToUpper(symbol)); ok {
		q := v.(models.Quote)
		q.Status = models.PriceStatusStale
		q.Reason = err.Error()
		s.logger.Warn().Str("symbol", symbol).Err(err).Time("as_of", q.AsOf).Msg("Quote fetch failed, serving last known price")
		return q
	}

	s.logger.Warn().Str("symbol", symbol).Err(err).Msg("Quote unavailable")
	return models.UnavailableQuote(symbol, err.Error())
}

// Splits returns split events with effective dates in [from, to], ascending.
// The full split history is fetched once per symbol and filtered locally.
func (s *Service) Splits(ctx context.Context, symbol string, from, to time.Time) ([]models.SplitEvent, error) {
	if !s.IsTradeable(symbol) {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrSplitLookup, symbol, models.ErrUntradeable)
	}

	key := cacheKey(symbol, models.LookupSplits)
	var history []models.SplitEvent
	if v, ok := s.cache.Get(key); ok {
		history = v.([]models.SplitEvent)
	} else {
		err := s.retry(ctx, symbol, func(ctx context.Context) error {
			var err error
			history, err = s.client.GetSplits(ctx, symbol, time.Time{}, time.Time{})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", models.ErrSplitLookup, symbol, err)
		}
		models.SortSplits(history)
		s.cache.Set(key, history, cache.NoExpiration)
	}

	from, to = models.TruncateDay(from), models.TruncateDay(to)
	var out []models.SplitEvent
	for _, ev := range history {
		day := models.TruncateDay(ev.EffectiveDate)
		if !from.IsZero() && day.Before(from) {
			continue
		}
		if !to.IsZero() && day.After(to) {
			continue
		}
		ev.Symbol = symbol
		out = append(out, ev)
	}
	return out, nil
}

// FXRate returns the provider rate for one unit of from in to. Rates are
// not cached here; the currency converter owns the day-scoped rate cache.
func (s *Service) FXRate(ctx context.Context, from, to string) (float64, error) {
	pair := strings.ToUpper(from + to)
	var r float64
	err := s.retry(ctx, pair+"=FX", func(ctx context.Context) error {
		var err error
		r, err = s.client.GetFXRate(ctx, from, to)
		return err
	})
	if err != nil {
		return 0, err
	}
	if r <= 0 {
		return 0, fmt.Errorf("non-positive rate %v for %s", r, pair)
	}
	return r, nil
}

// retry runs op under the throttle and backoff policy. Permanent failures
// stop immediately; the last error is returned once attempts are exhausted.
func (s *Service) retry(ctx context.Context, key string, op func(ctx context.Context) error) error {
	if s.policy.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.policy.FetchTimeout)
		defer cancel()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.policy.BaseDelay
	b.MaxInterval = s.policy.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		if err := s.throttle(ctx, key); err != nil {
			return backoff.Permanent(err)
		}
		err := op(ctx)
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.policy.Retries-1)), ctx),
		func(err error, wait time.Duration) {
			s.logger.Debug().
				Str("key", key).
				Int("attempt", attempt).
				Dur("wait", wait).
				Err(err).
				Msg("Lookup failed, retrying")
		})
}

// throttle enforces the per-key minimum request interval
func (s *Service) throttle(ctx context.Context, key string) error {
	if s.policy.MinInterval <= 0 {
		return nil
	}
	s.mu.Lock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(s.policy.MinInterval), 1)
		s.limiters[key] = l
	}
	s.mu.Unlock()

	if l.Tokens() < 1 {
		s.logger.Debug().Str("key", key).Dur("min_interval", s.policy.MinInterval).Msg("Throttling request")
	}
	return l.Wait(ctx)
}

// isPermanent reports whether err cannot be fixed by retrying
func isPermanent(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var p interface{ Permanent() bool }
	if errors.As(err, &p) && p.Permanent() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range permanentMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Ensure Service implements the gateway contracts
var (
	_ interfaces.QuoteGateway = (*Service)(nil)
	_ interfaces.RateSource   = (*Service)(nil)
)
