package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"order_sync/internal/domain"
	"order_sync/internal/lease"
)

type OrderStore interface {
	// UpsertBatch writes orders wholesale and returns the ids that did not
	// exist before.
	UpsertBatch(ctx context.Context, orders []domain.Order) ([]string, error)
	MissingSendDates(ctx context.Context, limit int) ([]string, error)
}

type SyncStateStore interface {
	Get(ctx context.Context, mode string) (*domain.SyncState, error)
	Update(ctx context.Context, state *domain.SyncState) error
}

type Source interface {
	ID() string
	Name() string
	PageSize() int
	EnsurePlatforms(ctx context.Context) error
	FetchPage(ctx context.Context, q domain.OrderQuery) ([]domain.Order, error)
	FetchOrder(ctx context.Context, id string) (*domain.Order, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, order *domain.Order, isNew bool) error
	Close() error
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*lease.Lease, error)
}

type Metrics interface {
	ObserveSync(mode domain.SyncMode, stats *domain.SyncStats, err error)
	ObserveBackfill(ok bool)
}
