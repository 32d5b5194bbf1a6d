package common

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// Scheduler fans per-symbol work out over a bounded number of goroutines.
// Symbols are processed in batches of BatchSize; the scheduler waits
// BatchDelay between batches so bursts against a quota-limited provider
// stay spread out. Zero values mean: Concurrency 1, one batch, no delay.
type Scheduler struct {
	Concurrency int
	BatchSize   int
	BatchDelay  time.Duration
	logger      *Logger
}

// NewScheduler builds a scheduler from the gateway section of the config.
func NewScheduler(cfg GatewayConfig, logger *Logger) *Scheduler {
	return &Scheduler{
		Concurrency: cfg.Concurrency,
		BatchSize:   cfg.BatchSize,
		BatchDelay:  cfg.GetBatchDelay(),
		logger:      logger,
	}
}

// Run calls fn once per key and returns when every call has finished or ctx
// is cancelled. A panic in fn is recovered and logged; the remaining keys
// still run. Keys not started before cancellation are skipped and ctx.Err()
// is returned.
func (s *Scheduler) Run(ctx context.Context, keys []string, fn func(ctx context.Context, key string)) error {
	if len(keys) == 0 {
		return nil
	}

	workers := s.Concurrency
	if workers < 1 {
		workers = 1
	}
	batch := s.BatchSize
	if batch < 1 {
		batch = len(keys)
	}

	semaphore := make(chan struct{}, workers)

	for start := 0; start < len(keys); start += batch {
		if start > 0 && s.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.BatchDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + batch
		if end > len(keys) {
			end = len(keys)
		}

		var wg sync.WaitGroup
		for _, key := range keys[start:end] {
			select {
			case <-ctx.Done():
				wg.Wait()
				return ctx.Err()
			case semaphore <- struct{}{}: // Acquire
			}

			wg.Add(1)
			go func(k string) {
				defer wg.Done()
				defer func() { <-semaphore }() // Release
				defer s.recoverPanic(k)
				fn(ctx, k)
			}(key)
		}
		wg.Wait()

		if s.logger != nil {
			s.logger.Debug().
				Int("batch_start", start).
				Int("batch_end", end).
				Int("total", len(keys)).
				Msg("Scheduler batch complete")
		}
	}
	return nil
}

func (s *Scheduler) recoverPanic(key string) {
	if r := recover(); r != nil && s.logger != nil {
		s.logger.Error().
			Str("key", key).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", string(debug.Stack())).
			Msg("Recovered from panic in scheduled task")
	}
}
