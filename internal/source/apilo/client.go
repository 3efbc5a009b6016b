package apilo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	userAgent       = "OrderSync/1.0"
	maxErrorPayload = 4 << 10
)

// Config holds Apilo client configuration.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	PageSize     int
	Timeout      time.Duration
	// MinRequestInterval spaces consecutive upstream calls. Zero disables pacing.
	MinRequestInterval time.Duration
}

// Client performs authorized calls against the Apilo REST API. Every call,
// token refreshes included, waits for the shared pacing limiter.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	tokens     *TokenManager
	logger     *slog.Logger
}

// NewClient creates a new Apilo client backed by store for credentials.
func NewClient(cfg Config, store TokenStore, logger *slog.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	limiter := newLimiter(cfg.MinRequestInterval)
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	cfg.BaseURL = baseURL
	logger = logger.With("source", SourceID)

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		limiter:    limiter,
		tokens:     newTokenManager(store, httpClient, limiter, cfg, logger),
		logger:     logger,
	}
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Tokens exposes the credential manager.
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

// Do performs one authorized call and decodes a JSON body into out. A 401 is
// answered with exactly one forced refresh and retry; nothing else is retried.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	status, payload, err := c.send(ctx, method, path, body, token)
	if err == nil && status == http.StatusUnauthorized {
		c.logger.Info("access token rejected, refreshing", "method", method, "path", path)

		token, err = c.tokens.ForceRefresh(ctx, token)
		if err != nil {
			return err
		}
		status, payload, err = c.send(ctx, method, path, body, token)
	}

	if err != nil {
		return &UpstreamError{Method: method, Path: path, StatusCode: status, Err: err}
	}
	if status < 200 || status >= 300 {
		return &UpstreamError{Method: method, Path: path, StatusCode: status, Payload: truncate(payload)}
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &UpstreamError{
			Method:     method,
			Path:       path,
			StatusCode: status,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any, token string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}

	c.logger.Debug("upstream call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	return resp.StatusCode, payload, nil
}

func truncate(payload []byte) string {
	payload = bytes.TrimSpace(payload)
	if len(payload) > maxErrorPayload {
		payload = payload[:maxErrorPayload]
	}
	return string(payload)
}
