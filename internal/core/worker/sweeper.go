package worker

import (
	"context"
	"log/slog"
	"time"
)

// Restorer schedules journaled work that is not running yet.
type Restorer interface {
	Restore(ctx context.Context) (int, error)
}

// Sweeper periodically hands journaled deletions to the scheduler, so
// deletions journaled by another process (the report command) still run.
type Sweeper struct {
	restorer Restorer
	interval time.Duration
	log      *slog.Logger
}

// NewSweeper creates a new Sweeper worker.
func NewSweeper(restorer Restorer, interval time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		restorer: restorer,
		interval: interval,
		log:      log,
	}
}

// Start runs the sweep loop until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		return // Sweeping disabled
	}

	interval := max(s.interval, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.restorer.Restore(ctx)
	if err != nil {
		s.log.Error("[Sweeper] failed to restore deferred deletions", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("[Sweeper] picked up deferred deletions", "count", n)
	}
}
