package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"order_sync/internal/domain"
)

// CredentialStore keeps the single upstream credential in the tokens table.
type CredentialStore struct {
	db *sqlx.DB
}

func NewCredentialStore(db *sqlx.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

type tokenRow struct {
	AccessToken  string `db:"access_token"`
	RefreshToken string `db:"refresh_token"`
	ExpiresAt    int64  `db:"expires_at"`
}

// Get returns nil without error when no credential was ever stored.
func (s *CredentialStore) Get(ctx context.Context) (*domain.Credential, error) {
	var row tokenRow
	query := `SELECT access_token, refresh_token, expires_at FROM tokens WHERE id = 1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cred := &domain.Credential{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
	}
	if row.ExpiresAt > 0 {
		cred.ExpiresAt = time.UnixMilli(row.ExpiresAt).UTC()
	}
	return cred, nil
}

func (s *CredentialStore) Save(ctx context.Context, cred *domain.Credential) error {
	query := `
		INSERT INTO tokens (id, access_token, refresh_token, expires_at, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()`

	var expiresAt int64
	if !cred.ExpiresAt.IsZero() {
		expiresAt = cred.ExpiresAt.UnixMilli()
	}

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		cred.AccessToken,
		cred.RefreshToken,
		expiresAt,
	)
	return err
}
