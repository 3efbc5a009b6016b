package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"order_sync/internal/domain"
)

type SyncStateStore struct {
	db *sqlx.DB
}

func NewSyncStateStore(db *sqlx.DB) *SyncStateStore {
	return &SyncStateStore{db: db}
}

// Get returns the watermark of mode. A mode that never completed a pass gets
// an empty state with a zero LastSyncedAt.
func (s *SyncStateStore) Get(ctx context.Context, mode string) (*domain.SyncState, error) {
	var state domain.SyncState
	query := `
		SELECT id, mode, last_synced_at, last_order_id, total_synced
		FROM sync_state
		WHERE mode = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &state, query, mode)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.SyncState{Mode: mode}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *SyncStateStore) Update(ctx context.Context, state *domain.SyncState) error {
	query := `
		INSERT INTO sync_state (mode, last_synced_at, last_order_id, total_synced)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (mode) DO UPDATE SET
			last_synced_at = EXCLUDED.last_synced_at,
			last_order_id = EXCLUDED.last_order_id,
			total_synced = EXCLUDED.total_synced`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		state.Mode,
		state.LastSyncedAt,
		state.LastOrderID,
		state.TotalSynced,
	)
	return err
}
