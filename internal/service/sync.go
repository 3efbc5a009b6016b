package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"order_sync/internal/config"
	"order_sync/internal/domain"
	"order_sync/internal/lease"
)

const leaseKey = "orders"

// FullOptions bounds a full sweep. Zero values fall back to configuration.
type FullOptions struct {
	Since     *time.Time
	MaxOrders int
}

type SyncService struct {
	source    Source
	orders    OrderStore
	syncState SyncStateStore
	txManager TransactionManager
	publisher Publisher
	locker    Locker
	metrics   Metrics
	logger    *slog.Logger
	config    config.SyncConfig
	now       func() time.Time

	mu     sync.RWMutex
	status domain.SyncStatus
}

func NewSyncService(
	source Source,
	orders OrderStore,
	syncState SyncStateStore,
	txManager TransactionManager,
	publisher Publisher,
	locker Locker,
	metrics Metrics,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		source:    source,
		orders:    orders,
		syncState: syncState,
		txManager: txManager,
		publisher: publisher,
		locker:    locker,
		metrics:   metrics,
		logger:    logger.With("source", source.ID()),
		config:    cfg,
		now:       time.Now,
		status:    domain.SyncStatus{Phase: domain.PhaseIdle},
	}
}

// pass is the bookkeeping of one sweep under the lease.
type pass struct {
	mode   domain.SyncMode
	start  time.Time
	seen   map[string]struct{}
	lastID string
	stats  *domain.SyncStats
}

// SyncIncremental pages the recency windows since the watermark, then a
// bounded fallback sweep, and moves the watermark to the pass start.
func (s *SyncService) SyncIncremental(ctx context.Context) (*domain.SyncStats, error) {
	return s.run(ctx, domain.SyncIncremental, s.incremental)
}

// SyncFull pages the whole order list newest first up to a ceiling.
func (s *SyncService) SyncFull(ctx context.Context, opts FullOptions) (*domain.SyncStats, error) {
	return s.run(ctx, domain.SyncFull, func(ctx context.Context, p *pass) error {
		return s.full(ctx, p, opts)
	})
}

// Backfill refetches stored orders that still lack a shipping window.
func (s *SyncService) Backfill(ctx context.Context, limit int) (*domain.SyncStats, error) {
	if limit <= 0 {
		limit = s.config.BackfillLimit
	}
	return s.run(ctx, domain.SyncBackfill, func(ctx context.Context, p *pass) error {
		return s.backfill(ctx, p, limit)
	})
}

// RefreshOrder fetches the detail representation of one order and stores it.
func (s *SyncService) RefreshOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.source.FetchOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", id, err)
	}
	if _, err := s.write(ctx, &domain.SyncStats{}, []domain.Order{*order}); err != nil {
		return nil, err
	}
	return order, nil
}

// Status returns the current phase and the result of the last pass.
func (s *SyncService) Status() domain.SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *SyncService) run(ctx context.Context, mode domain.SyncMode, fn func(context.Context, *pass) error) (*domain.SyncStats, error) {
	held, err := s.locker.Acquire(ctx, leaseKey, s.config.LeaseTTL)
	if err != nil {
		if errors.Is(err, lease.ErrSyncInProgress) {
			s.logger.Warn("sync rejected, another pass holds the lease", "mode", mode)
		}
		return nil, err
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("release lease", "error", err)
		}
	}()

	p := &pass{
		mode:  mode,
		start: s.now(),
		seen:  make(map[string]struct{}),
		stats: &domain.SyncStats{Mode: mode},
	}

	s.logger.Info("starting sync",
		"mode", mode,
		"source_name", s.source.Name(),
		"page_size", s.source.PageSize(),
	)

	s.setPhase(p, domain.PhaseFetchingMaps)
	if err = s.source.EnsurePlatforms(ctx); err != nil {
		err = fmt.Errorf("ensure platforms: %w", err)
	} else {
		s.setPhase(p, domain.PhasePaging)
		err = fn(ctx, p)
	}

	p.stats.Duration = s.now().Sub(p.start)
	s.finish(p, err)
	if s.metrics != nil {
		s.metrics.ObserveSync(mode, p.stats, err)
	}

	if err != nil {
		s.logger.Error("sync failed",
			"mode", mode,
			"new", p.stats.New,
			"updated", p.stats.Updated,
			"pages", p.stats.Pages,
			"error", err,
		)
		return p.stats, err
	}

	s.logger.Info("sync completed",
		"mode", mode,
		"fetched", p.stats.Fetched,
		"new", p.stats.New,
		"updated", p.stats.Updated,
		"backfilled", p.stats.Backfilled,
		"errors", p.stats.Errors,
		"published", p.stats.Published,
		"duration", p.stats.Duration,
	)

	return p.stats, nil
}

func (s *SyncService) incremental(ctx context.Context, p *pass) error {
	state, err := s.syncState.Get(ctx, string(p.mode))
	if err != nil {
		return fmt.Errorf("get sync state: %w", err)
	}

	since := p.start.Add(-s.config.InitialLookback)
	if state != nil && !state.LastSyncedAt.IsZero() {
		since = state.LastSyncedAt.Add(-s.config.WindowOverlap)
	}
	s.logger.Debug("incremental window", "since", since)

	windows := []domain.OrderQuery{
		{Sort: domain.SortOrderedAtDesc, OrderedAfter: &since},
		{Sort: domain.SortUpdatedAtDesc, UpdatedAfter: &since},
	}
	for _, q := range windows {
		if err := s.sweep(ctx, p, q, s.config.WindowMaxOrders); err != nil {
			return err
		}
	}

	// catches orders the date filters miss
	if err := s.sweep(ctx, p, domain.OrderQuery{Sort: domain.SortUpdatedAtDesc}, s.config.FallbackMaxOrders); err != nil {
		return err
	}

	if err := s.saveWatermark(ctx, p, state); err != nil {
		return err
	}
	s.backfillAfterSweep(ctx, p)
	return nil
}

func (s *SyncService) full(ctx context.Context, p *pass, opts FullOptions) error {
	ceiling := opts.MaxOrders
	if ceiling <= 0 {
		ceiling = s.config.FullMaxOrders
	}

	q := domain.OrderQuery{Sort: domain.SortOrderedAtDesc}
	switch {
	case opts.Since != nil:
		q.OrderedAfter = opts.Since
	case s.config.FullHistoryDays > 0:
		since := p.start.AddDate(0, 0, -s.config.FullHistoryDays)
		q.OrderedAfter = &since
	}

	if err := s.sweep(ctx, p, q, ceiling); err != nil {
		return err
	}

	state, err := s.syncState.Get(ctx, string(p.mode))
	if err != nil {
		return fmt.Errorf("get sync state: %w", err)
	}
	if err := s.saveWatermark(ctx, p, state); err != nil {
		return err
	}
	s.backfillAfterSweep(ctx, p)
	return nil
}

// sweep pages q by offset until an empty page or until ceiling orders were
// fetched. Every page is flushed before the next one is requested.
func (s *SyncService) sweep(ctx context.Context, p *pass, q domain.OrderQuery, ceiling int) error {
	pageSize := s.source.PageSize()
	fetched := 0

	for fetched < ceiling {
		q.Limit = min(pageSize, ceiling-fetched)

		page, err := s.source.FetchPage(ctx, q)
		if err != nil {
			return fmt.Errorf("fetch page at offset %d: %w", q.Offset, err)
		}
		p.stats.Pages++
		if len(page) == 0 {
			return nil
		}

		q.Offset += len(page)
		if len(page) > ceiling-fetched {
			page = page[:ceiling-fetched]
		}
		fetched += len(page)
		p.stats.Fetched += len(page)

		if err := s.flush(ctx, p, page); err != nil {
			return err
		}
	}

	s.logger.Debug("sweep stopped at ceiling", "sort", q.Sort, "ceiling", ceiling)
	return nil
}

// flush stores the orders of page not seen earlier in the pass.
func (s *SyncService) flush(ctx context.Context, p *pass, page []domain.Order) error {
	fresh := make([]domain.Order, 0, len(page))
	for _, o := range page {
		if o.ID == "" {
			s.logger.Warn("skipping order without id", "channel", o.Channel.Label)
			p.stats.Skipped++
			continue
		}
		if _, ok := p.seen[o.ID]; ok {
			continue
		}
		p.seen[o.ID] = struct{}{}
		fresh = append(fresh, o)
	}
	if len(fresh) == 0 {
		return nil
	}

	created, err := s.write(ctx, p.stats, fresh)
	if err != nil {
		return err
	}

	for _, o := range fresh {
		if created[o.ID] {
			p.stats.New++
		} else {
			p.stats.Updated++
		}
	}
	if p.lastID == "" {
		p.lastID = fresh[0].ID
	}
	return nil
}

// write upserts orders in one transaction and publishes them afterwards.
func (s *SyncService) write(ctx context.Context, stats *domain.SyncStats, orders []domain.Order) (map[string]bool, error) {
	var created []string
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		created, err = s.orders.UpsertBatch(txCtx, orders)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upsert orders: %w", err)
	}

	isNew := make(map[string]bool, len(created))
	for _, id := range created {
		isNew[id] = true
	}

	if s.publisher == nil {
		return isNew, nil
	}
	for i := range orders {
		if err := s.publisher.Publish(ctx, &orders[i], isNew[orders[i].ID]); err != nil {
			s.logger.Warn("publish order", "order_id", orders[i].ID, "error", err)
			stats.Errors++
			continue
		}
		stats.Published++
	}
	return isNew, nil
}

func (s *SyncService) saveWatermark(ctx context.Context, p *pass, state *domain.SyncState) error {
	if state == nil {
		state = &domain.SyncState{}
	}
	state.Mode = string(p.mode)
	state.LastSyncedAt = p.start
	state.TotalSynced += int64(p.stats.Processed())
	if p.lastID != "" {
		state.LastOrderID = p.lastID
	}

	if err := s.syncState.Update(ctx, state); err != nil {
		return fmt.Errorf("update sync state: %w", err)
	}
	return nil
}

func (s *SyncService) backfillAfterSweep(ctx context.Context, p *pass) {
	if !s.config.BackfillEnabled {
		return
	}
	if err := s.backfill(ctx, p, s.config.BackfillLimit); err != nil {
		s.logger.Warn("backfill aborted", "error", err)
	}
}

// backfill is best effort: one failed order is counted and skipped, an
// unusable credential or a cancelled context stops the loop.
func (s *SyncService) backfill(ctx context.Context, p *pass, limit int) error {
	ids, err := s.orders.MissingSendDates(ctx, limit)
	if err != nil {
		return fmt.Errorf("select orders to backfill: %w", err)
	}

	s.logger.Debug("backfilling shipping windows", "candidates", len(ids))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		order, err := s.source.FetchOrder(ctx, id)
		if err == nil {
			_, err = s.write(ctx, p.stats, []domain.Order{*order})
		}
		s.observeBackfill(err == nil)
		if err != nil {
			p.stats.Errors++
			if errors.Is(err, domain.ErrUnauthorized) {
				return fmt.Errorf("backfill order %s: %w", id, err)
			}
			s.logger.Warn("backfill order failed", "order_id", id, "error", err)
			continue
		}
		p.stats.Backfilled++
	}
	return nil
}

func (s *SyncService) observeBackfill(ok bool) {
	if s.metrics != nil {
		s.metrics.ObserveBackfill(ok)
	}
}

func (s *SyncService) setPhase(p *pass, phase domain.SyncPhase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Phase = phase
	s.status.Mode = p.mode
	if phase == domain.PhaseFetchingMaps {
		started := p.start
		s.status.StartedAt = &started
		s.status.FinishedAt = nil
	}
}

func (s *SyncService) finish(p *pass, err error) {
	finished := s.now()
	stats := *p.stats

	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.FinishedAt = &finished
	s.status.LastStats = &stats
	if err != nil {
		s.status.Phase = domain.PhaseFailed
		s.status.LastError = err.Error()
		return
	}
	s.status.Phase = domain.PhaseDone
	s.status.LastError = ""
}
