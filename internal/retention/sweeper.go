package retention

import (
	"context"
	"time"
)

// Sweeper runs the cleanup on an interval. It is safe to run alongside
// manually triggered cleanup calls: purge is idempotent and already-absent
// rows are not errors.
type Sweeper struct {
	svc      *Service
	interval time.Duration
}

// NewSweeper wraps a retention Service with a periodic trigger.
func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, interval: interval}
}

// Run blocks until ctx is cancelled, invoking the cleanup each interval.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.svc.RunCleanupNow(ctx); err != nil {
				w.svc.log.Error("scheduled cleanup failed", "err", err)
			}
		}
	}
}
