package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// SyncFunc runs one sync attempt. The scheduler does not care about
// counts, only failures.
type SyncFunc func(ctx context.Context) error

// Scheduler drives one sync domain on a fixed interval. Scheduling
// policy (intervals, per-pass deadline) lives here; the engines only
// decide whether a pass is due.
type Scheduler struct {
	name     string
	sync     SyncFunc
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewScheduler(name string, sync SyncFunc, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		name:     name,
		sync:     sync,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("scheduler", name),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.sync(syncCtx); err != nil {
		s.logger.Error("sync failed", "error", err)
	}
}
