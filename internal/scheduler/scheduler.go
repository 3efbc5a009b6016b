package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"order_sync/internal/domain"
	"order_sync/internal/lease"
)

// Syncer runs one incremental pass.
type Syncer interface {
	SyncIncremental(ctx context.Context) (*domain.SyncStats, error)
}

// Scheduler triggers a pass immediately and then on every tick. Runs never
// overlap: a tick that arrives during a run is dropped by the ticker.
type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewScheduler(syncer Syncer, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "timeout", s.timeout)

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

	_, err := s.syncer.SyncIncremental(syncCtx)
	switch {
	case err == nil:
	case errors.Is(err, lease.ErrSyncInProgress):
		s.logger.Info("scheduled sync skipped, another pass is running")
	default:
		s.logger.Error("scheduled sync failed", "error", err)
	}
}
