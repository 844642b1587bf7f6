package shortener

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SweepFunc purges links that expired before now.
type SweepFunc func(ctx context.Context, now time.Time) (int64, error)

// Sweeper runs sweeps opportunistically from request paths. At most one sweep runs at a
// time per Sweeper, and runs are spaced by at least the configured interval.
type Sweeper struct {
	sweep    SweepFunc
	now      Clock
	interval time.Duration
	logger   *zap.Logger

	running atomic.Bool
	lastRun atomic.Int64 // unix nanos of the last started sweep
}

// NewSweeper creates a new opportunistic sweeper.
func NewSweeper(sweep SweepFunc, clock Clock, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		sweep:    sweep,
		now:      clock,
		interval: interval,
		logger:   logger,
	}
}

// MaybeSweep purges expired links unless a sweep is in flight or ran recently.
// Failures are logged and never returned; it reports whether a sweep completed.
func (s *Sweeper) MaybeSweep(ctx context.Context) bool {
	now := s.now()

	if last := s.lastRun.Load(); last != 0 && now.Sub(time.Unix(0, last)) < s.interval {
		return false
	}

	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	defer s.running.Store(false)

	s.lastRun.Store(now.UnixNano())

	if _, err := s.sweep(ctx, now); err != nil {
		s.logger.Error("opportunistic sweep failed", zap.Error(err))

		return false
	}

	return true
}
