package app

import (
	"context"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
)

// StartPriceRefresh re-prices holdings every interval until Close is
// called. onRefresh, when non-nil, runs after each successful refresh.
// A refresher that is already running is stopped first.
func (a *App) StartPriceRefresh(interval time.Duration, onRefresh func()) {
	a.stopPriceRefresh()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.refreshCancel = cancel
	a.refreshDone = done
	go func() {
		defer close(done)
		startPriceRefresher(ctx, a.Portfolio, a.Logger, interval, onRefresh)
	}()
}

// stopPriceRefresh cancels the refresher and waits for it to exit, so no
// onRefresh call can run after it returns.
func (a *App) stopPriceRefresh() {
	if a.refreshCancel == nil {
		return
	}
	a.refreshCancel()
	<-a.refreshDone
	a.refreshCancel = nil
	a.refreshDone = nil
}

// startPriceRefresher refreshes prices on a fixed interval. Quantities and
// cost basis are never recomputed here; only a new Load does that.
func startPriceRefresher(ctx context.Context, svc interfaces.PortfolioService, logger *common.Logger, interval time.Duration, onRefresh func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Price refresher: stopped")
			return
		case <-ticker.C:
			if refreshPrices(ctx, svc, logger) && onRefresh != nil && ctx.Err() == nil {
				onRefresh()
			}
		}
	}
}

func refreshPrices(ctx context.Context, svc interfaces.PortfolioService, logger *common.Logger) bool {
	start := time.Now()

	if err := svc.RefreshPrices(ctx); err != nil {
		logger.Warn().Err(err).Msg("Price refresher: refresh failed")
		return false
	}

	logger.Info().
		Int("holdings", len(svc.Holdings())).
		Dur("elapsed", time.Since(start)).
		Msg("Price refresher: complete")
	return true
}
