// Package liveness implements the liveness cron (spec component C7): a
// ticker loop that sweeps agents whose heartbeat has gone stale and
// releases their in-flight work back to the queue, grounded on the pack's
// CleanupService ticker-loop shape.
package liveness

import (
	"context"
	"log/slog"
	"time"

	"github.com/crater-dist/crater/internal/assign"
)

// Sweeper periodically reclaims work dispatched to agents that have
// stopped heartbeating.
type Sweeper struct {
	engine         *assign.Engine
	log            *slog.Logger
	checkInterval  time.Duration
	staleThreshold time.Duration
}

// New builds a Sweeper. checkInterval governs how often the stale check
// runs; staleThreshold is how long an agent may go without a heartbeat
// before its claims are considered abandoned (spec §4.7).
func New(engine *assign.Engine, log *slog.Logger, checkInterval, staleThreshold time.Duration) *Sweeper {
	return &Sweeper{
		engine:         engine,
		log:            log,
		checkInterval:  checkInterval,
		staleThreshold: staleThreshold,
	}
}

// Run blocks sweeping on checkInterval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.log.Info("liveness sweeper started", "interval", s.checkInterval, "stale-threshold", s.staleThreshold)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("liveness sweeper stopped")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	reclaimed, err := s.engine.ReclaimStale(time.Now(), s.staleThreshold)
	if err != nil {
		s.log.Error("liveness sweep failed", "error", err)
		return
	}
	if reclaimed > 0 {
		s.log.Info("reclaimed stale work", "count", reclaimed)
	}
}
