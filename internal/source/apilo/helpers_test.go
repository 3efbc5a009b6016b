package apilo

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"order_sync/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type memTokenStore struct {
	mu    sync.Mutex
	cred  *domain.Credential
	saves int
}

func newMemTokenStore(cred *domain.Credential) *memTokenStore {
	return &memTokenStore{cred: cred}
}

func (m *memTokenStore) Get(_ context.Context) (*domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return nil, nil
	}
	c := *m.cred
	return &c, nil
}

func (m *memTokenStore) Save(_ context.Context, cred *domain.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cred
	m.cred = &c
	m.saves++
	return nil
}

func (m *memTokenStore) current() domain.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.cred
}

func newTestClient(t *testing.T, baseURL string, store TokenStore) *Client {
	t.Helper()
	return NewClient(Config{
		BaseURL:      baseURL,
		ClientID:     "client",
		ClientSecret: "secret",
		PageSize:     100,
		Timeout:      5 * time.Second,
	}, store, testLogger())
}

func validCredential(token string) *domain.Credential {
	return &domain.Credential{
		AccessToken:  token,
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

type staticPlatforms map[int64]domain.Platform

func (p staticPlatforms) Lookup(id int64) (domain.Platform, bool) {
	e, ok := p[id]
	return e, ok
}
