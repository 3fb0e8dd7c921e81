// Package sweeper runs periodic response-cache maintenance: it evicts
// expired entries on an interval so a long-lived dashboard process does
// not accumulate weeks of dead envelopes on disk.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/ai-labc/cropai/internal/adapter/cache"
)

// DefaultInterval between sweeps.
const DefaultInterval = time.Hour

// Sweeper owns the sweep loop.
type Sweeper struct {
	store    cache.Store
	logger   *slog.Logger
	interval time.Duration
}

// New creates a sweeper. A non-positive interval falls back to the
// default.
func New(store cache.Store, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{store: store, logger: logger, interval: interval}
}

// Run sweeps once immediately, then on every interval tick until the
// context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("cache sweeper started", "interval", s.interval)

	s.sweep()
	for {
		if !sleepWithContext(ctx, s.interval) {
			s.logger.Info("cache sweeper stopping", "reason", ctx.Err())
			return nil
		}
		s.sweep()
	}
}

func (s *Sweeper) sweep() {
	start := time.Now()
	removed := s.store.ClearExpired()
	if removed > 0 {
		s.logger.Info("swept expired cache entries", "removed", removed, "duration", time.Since(start))
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
