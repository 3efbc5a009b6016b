package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"order_sync/internal/domain"
	"order_sync/internal/lease"
	"order_sync/internal/service"
	"order_sync/internal/storage/postgres"
)

type fakeSyncer struct {
	stats    *domain.SyncStats
	err      error
	fullOpts service.FullOptions
	limit    int
	deadline bool

	refreshed    *domain.Order
	refreshErr   error
	refreshCalls int
}

func (f *fakeSyncer) SyncIncremental(ctx context.Context) (*domain.SyncStats, error) {
	_, f.deadline = ctx.Deadline()
	return f.stats, f.err
}

func (f *fakeSyncer) SyncFull(_ context.Context, opts service.FullOptions) (*domain.SyncStats, error) {
	f.fullOpts = opts
	return f.stats, f.err
}

func (f *fakeSyncer) Backfill(_ context.Context, limit int) (*domain.SyncStats, error) {
	f.limit = limit
	return f.stats, f.err
}

func (f *fakeSyncer) RefreshOrder(_ context.Context, id string) (*domain.Order, error) {
	f.refreshCalls++
	return f.refreshed, f.refreshErr
}

func (f *fakeSyncer) Status() domain.SyncStatus {
	return domain.SyncStatus{Phase: domain.PhaseIdle}
}

type fakeOrders struct {
	orders   map[string]*domain.Order
	filter   domain.OrderFilter
	since    time.Time
	err      error
	statuses []domain.StatusCount
}

func (f *fakeOrders) Get(_ context.Context, id string) (*domain.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	o, ok := f.orders[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) List(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Order
	for _, o := range f.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeOrders) StatusDistribution(_ context.Context, since time.Time) ([]domain.StatusCount, error) {
	f.since = since
	return f.statuses, f.err
}

func (f *fakeOrders) ChannelCounts(_ context.Context, since time.Time) ([]domain.ChannelCount, error) {
	f.since = since
	return []domain.ChannelCount{{Label: "Amazon DE", Platform: "Amazon", Count: 3}}, f.err
}

func (f *fakeOrders) Summary(_ context.Context, now time.Time) (*domain.Summary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Summary{OrdersToday: 4, TotalOrders: 10}, nil
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *Meta           `json:"meta"`
	Count   *int            `json:"count"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type HandlerTestSuite struct {
	suite.Suite
	syncer *fakeSyncer
	orders *fakeOrders
	pinger fakePinger
	token  string
	now    time.Time
}

func (s *HandlerTestSuite) SetupTest() {
	s.syncer = &fakeSyncer{stats: &domain.SyncStats{Mode: domain.SyncIncremental, New: 2, Updated: 3}}
	s.orders = &fakeOrders{orders: map[string]*domain.Order{}}
	s.pinger = fakePinger{}
	s.token = ""
	s.now = time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func (s *HandlerTestSuite) do(method, target string, header ...string) (*httptest.ResponseRecorder, envelope) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	h := NewHandler(s.syncer, s.orders, s.pinger, time.Minute, logger)
	h.now = func() time.Time { return s.now }

	router := NewRouter(RouterConfig{
		Handler: h,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "order_sync_runs_total 1")
		}),
		APIToken: s.token,
		Logger:   logger,
	})

	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (s *HandlerTestSuite) TestSyncIncremental_Success() {
	rec, env := s.do(http.MethodPost, "/api/sync")

	s.Equal(http.StatusOK, rec.Code)
	s.True(env.Success)
	var result SyncResult
	s.Require().NoError(json.Unmarshal(env.Data, &result))
	s.Equal(5, result.Count)
	s.Equal(domain.SyncIncremental, result.Mode)
	s.Equal(s.now, result.Timestamp)
	s.True(s.syncer.deadline)
	s.NotEmpty(rec.Header().Get("X-Request-ID"))
}

func (s *HandlerTestSuite) TestSync_LeaseConflict() {
	s.syncer.stats = nil
	s.syncer.err = lease.ErrSyncInProgress

	rec, env := s.do(http.MethodPost, "/api/sync")

	s.Equal(http.StatusConflict, rec.Code)
	s.False(env.Success)
	s.Equal("SYNC_IN_PROGRESS", env.Error.Code)
	s.Require().NotNil(env.Count)
	s.Equal(0, *env.Count)
}

func (s *HandlerTestSuite) TestSync_FailureReportsPartialCount() {
	s.syncer.err = errors.New("fetch page at offset 500: upstream 500")

	rec, env := s.do(http.MethodPost, "/api/sync")

	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Equal("INTERNAL_ERROR", env.Error.Code)
	s.Contains(env.Error.Message, "offset 500")
	s.Equal(5, *env.Count)
}

func (s *HandlerTestSuite) TestSync_ErrorMapping() {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unauthorized", fmt.Errorf("ensure platforms: %w", domain.ErrUnauthorized), http.StatusBadGateway, "UPSTREAM_UNAUTHORIZED"},
		{"timeout", fmt.Errorf("fetch page: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "TIMEOUT"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.syncer.err = tt.err
			rec, env := s.do(http.MethodPost, "/api/sync")
			s.Equal(tt.status, rec.Code)
			s.Equal(tt.code, env.Error.Code)
		})
	}
}

func (s *HandlerTestSuite) TestSyncFull_ParsesOptions() {
	rec, _ := s.do(http.MethodPost, "/api/sync/full?days=60&max=1000")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(1000, s.syncer.fullOpts.MaxOrders)
	s.Require().NotNil(s.syncer.fullOpts.Since)
	s.Equal(s.now.AddDate(0, 0, -60), *s.syncer.fullOpts.Since)
}

func (s *HandlerTestSuite) TestSyncFull_Defaults() {
	rec, _ := s.do(http.MethodPost, "/api/sync/full")

	s.Equal(http.StatusOK, rec.Code)
	s.Nil(s.syncer.fullOpts.Since)
	s.Zero(s.syncer.fullOpts.MaxOrders)
}

func (s *HandlerTestSuite) TestSyncFull_RejectsBadQuery() {
	rec, env := s.do(http.MethodPost, "/api/sync/full?days=abc")

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("BAD_REQUEST", env.Error.Code)
}

func (s *HandlerTestSuite) TestBackfill_CountsBackfilled() {
	s.syncer.stats = &domain.SyncStats{Mode: domain.SyncBackfill, Backfilled: 7}

	rec, env := s.do(http.MethodPost, "/api/sync/backfill?limit=15")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(15, s.syncer.limit)
	var result SyncResult
	s.Require().NoError(json.Unmarshal(env.Data, &result))
	s.Equal(7, result.Count)
}

func (s *HandlerTestSuite) TestSyncStatus() {
	rec, env := s.do(http.MethodGet, "/api/sync/status")

	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"phase":"idle"}`, string(env.Data))
}

func (s *HandlerTestSuite) TestListOrders_Filters() {
	s.orders.orders["1"] = &domain.Order{ID: "1"}

	rec, env := s.do(http.MethodGet, "/api/orders?limit=10&offset=20&channel=Amazon&payment_status=paid")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(domain.OrderFilter{Limit: 10, Offset: 20, Platform: "Amazon", PaymentStatus: domain.PaymentPaid}, s.orders.filter)
	s.Equal(&Meta{Limit: 10, Offset: 20, Count: 1}, env.Meta)
}

func (s *HandlerTestSuite) TestListOrders_Defaults() {
	rec, _ := s.do(http.MethodGet, "/api/orders?limit=100000")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(postgres.MaxListLimit, s.orders.filter.Limit)
}

func (s *HandlerTestSuite) TestListOrders_RejectsPaymentStatus() {
	rec, _ := s.do(http.MethodGet, "/api/orders?payment_status=refunded")

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerTestSuite) TestGetOrder_NotFound() {
	rec, env := s.do(http.MethodGet, "/api/orders/404")

	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("NOT_FOUND", env.Error.Code)
}

func (s *HandlerTestSuite) TestGetOrder_WithShippingSkipsRefresh() {
	s.orders.orders["1"] = &domain.Order{ID: "1", Shipping: &domain.Address{City: "Berlin"}}

	rec, _ := s.do(http.MethodGet, "/api/orders/1")

	s.Equal(http.StatusOK, rec.Code)
	s.Zero(s.syncer.refreshCalls)
}

func (s *HandlerTestSuite) TestGetOrder_RefreshesMissingShipping() {
	s.orders.orders["1"] = &domain.Order{ID: "1"}
	s.syncer.refreshed = &domain.Order{ID: "1", Shipping: &domain.Address{City: "Kraków"}}

	rec, env := s.do(http.MethodGet, "/api/orders/1")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(1, s.syncer.refreshCalls)
	var got domain.Order
	s.Require().NoError(json.Unmarshal(env.Data, &got))
	s.Equal("Kraków", got.Shipping.City)
}

func (s *HandlerTestSuite) TestGetOrder_RefreshFailureFallsBack() {
	s.orders.orders["1"] = &domain.Order{ID: "1"}
	s.syncer.refreshErr = errors.New("upstream down")

	rec, env := s.do(http.MethodGet, "/api/orders/1")

	s.Equal(http.StatusOK, rec.Code)
	var got domain.Order
	s.Require().NoError(json.Unmarshal(env.Data, &got))
	s.Equal("1", got.ID)
	s.Nil(got.Shipping)
}

func (s *HandlerTestSuite) TestStatuses_DefaultWindow() {
	s.orders.statuses = []domain.StatusCount{{Count: 3}}

	rec, _ := s.do(http.MethodGet, "/api/statuses")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(s.now.AddDate(0, 0, -90), s.orders.since)
}

func (s *HandlerTestSuite) TestChannels_CustomWindow() {
	rec, env := s.do(http.MethodGet, "/api/channels?days=7")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(s.now.AddDate(0, 0, -7), s.orders.since)
	s.JSONEq(`[{"label":"Amazon DE","platform":"Amazon","count":3}]`, string(env.Data))
}

func (s *HandlerTestSuite) TestSummary_StoreFailure() {
	s.orders.err = errors.New("connection reset")

	rec, env := s.do(http.MethodGet, "/api/summary")

	s.Equal(http.StatusInternalServerError, rec.Code)
	s.NotContains(env.Error.Message, "connection reset")
}

func (s *HandlerTestSuite) TestHealth() {
	rec, _ := s.do(http.MethodGet, "/health")
	s.Equal(http.StatusOK, rec.Code)

	s.pinger = fakePinger{err: errors.New("down")}
	rec, env := s.do(http.MethodGet, "/health")
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Equal("SERVICE_UNAVAILABLE", env.Error.Code)
}

func (s *HandlerTestSuite) TestBearerGuard() {
	s.token = "secret"

	rec, env := s.do(http.MethodPost, "/api/sync")
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("UNAUTHORIZED", env.Error.Code)

	rec, _ = s.do(http.MethodPost, "/api/sync", "Authorization", "Bearer wrong")
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(http.MethodPost, "/api/sync", "Authorization", "Bearer secret")
	s.Equal(http.StatusOK, rec.Code)

	rec, _ = s.do(http.MethodGet, "/health")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerTestSuite) TestMetricsIsPublic() {
	s.token = "secret"

	rec, _ := s.do(http.MethodGet, "/metrics")

	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "order_sync_runs_total")
}

func (s *HandlerTestSuite) TestRequestIDPropagates() {
	rec, _ := s.do(http.MethodGet, "/api/sync/status", "X-Request-ID", "abc-123")

	s.Equal("abc-123", rec.Header().Get("X-Request-ID"))
}
