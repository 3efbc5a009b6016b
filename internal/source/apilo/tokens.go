package apilo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"order_sync/internal/domain"
)

const (
	tokenPath = "/rest/auth/token/"

	// ExpiryMargin is subtracted from the upstream expiry before persisting.
	ExpiryMargin = 60 * time.Second

	defaultTokenLifetime = time.Hour
)

// TokenStore persists the single upstream credential.
type TokenStore interface {
	Get(ctx context.Context) (*domain.Credential, error)
	Save(ctx context.Context, cred *domain.Credential) error
}

// TokenManager hands out a currently valid access token, refreshing it
// through the upstream auth endpoint when needed. Refreshes are serialized so
// concurrent callers in one process converge on a single new token.
type TokenManager struct {
	store        TokenStore
	httpClient   *http.Client
	limiter      *rate.Limiter
	baseURL      string
	clientID     string
	clientSecret string
	now          func() time.Time
	logger       *slog.Logger

	mu sync.Mutex
}

func newTokenManager(store TokenStore, httpClient *http.Client, limiter *rate.Limiter, cfg Config, logger *slog.Logger) *TokenManager {
	return &TokenManager{
		store:        store,
		httpClient:   httpClient,
		limiter:      limiter,
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		now:          time.Now,
		logger:       logger,
	}
}

// AccessToken returns the cached access token while it is valid and
// refreshes it otherwise.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	if cred.Valid(m.now()) {
		return cred.AccessToken, nil
	}
	return m.refresh(ctx, cred)
}

// ForceRefresh refreshes after the upstream rejected the rejected token. If
// another caller already replaced it, the replacement is returned as is.
func (m *TokenManager) ForceRefresh(ctx context.Context, rejected string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	if cred.AccessToken != rejected && cred.Valid(m.now()) {
		return cred.AccessToken, nil
	}
	return m.refresh(ctx, cred)
}

func (m *TokenManager) load(ctx context.Context) (*domain.Credential, error) {
	cred, err := m.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if cred == nil {
		return nil, &AuthError{Reason: "no credential stored"}
	}
	return cred, nil
}

func (m *TokenManager) refresh(ctx context.Context, cred *domain.Credential) (string, error) {
	if cred.RefreshToken == "" {
		return "", &AuthError{Reason: "access token expired and no refresh token available"}
	}

	resp, err := m.requestToken(ctx, cred.RefreshToken)
	if err != nil {
		return "", &AuthError{Reason: "refresh failed", Err: err}
	}
	if resp.AccessToken == "" {
		return "", &AuthError{Reason: "refresh response carried no access token"}
	}

	next := &domain.Credential{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    m.expiresAt(resp.AccessTokenExpireAt),
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}

	if err := m.store.Save(ctx, next); err != nil {
		return "", fmt.Errorf("persist credential: %w", err)
	}

	m.logger.Info("access token refreshed", "expires_at", next.ExpiresAt)

	return next.AccessToken, nil
}

func (m *TokenManager) expiresAt(raw string) time.Time {
	if t := parseTime(raw); t != nil {
		return t.Add(-ExpiryMargin)
	}
	return m.now().Add(defaultTokenLifetime - ExpiryMargin)
}

func (m *TokenManager) requestToken(ctx context.Context, refreshToken string) (*tokenResponse, error) {
	body, err := json.Marshal(tokenRequest{GrantType: "refresh_token", Token: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return nil, &UpstreamError{Method: http.MethodPost, Path: tokenPath, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+tokenPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(m.clientID, m.clientSecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Method: http.MethodPost, Path: tokenPath, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Method: http.MethodPost, Path: tokenPath, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			Method:     http.MethodPost,
			Path:       tokenPath,
			StatusCode: resp.StatusCode,
			Payload:    truncate(payload),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(payload, &tr); err != nil {
		return nil, &UpstreamError{
			Method:     http.MethodPost,
			Path:       tokenPath,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	return &tr, nil
}
