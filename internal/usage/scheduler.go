package usage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultTickInterval is how often the Scheduler checks window boundaries.
const DefaultTickInterval = time.Minute

// Scheduler ticks a Tracker in the background so windows reset on time even
// while the process is idle.
type Scheduler struct {
	tracker  *Tracker
	interval time.Duration
}

// NewScheduler creates a Scheduler. A non-positive interval uses DefaultTickInterval.
func NewScheduler(tracker *Tracker, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Scheduler{tracker: tracker, interval: interval}
}

// Run starts the tick loop. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "usage.scheduler"))
	log.Info("starting usage scheduler", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("usage scheduler stopped")
			return
		case <-ticker.C:
			s.tracker.Tick(s.tracker.nowFunc())
		}
	}
}
