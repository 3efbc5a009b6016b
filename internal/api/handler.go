package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"order_sync/internal/domain"
	"order_sync/internal/lease"
	"order_sync/internal/service"
	"order_sync/internal/storage/postgres"
)

type Syncer interface {
	SyncIncremental(ctx context.Context) (*domain.SyncStats, error)
	SyncFull(ctx context.Context, opts service.FullOptions) (*domain.SyncStats, error)
	Backfill(ctx context.Context, limit int) (*domain.SyncStats, error)
	RefreshOrder(ctx context.Context, id string) (*domain.Order, error)
	Status() domain.SyncStatus
}

type OrderReader interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	StatusDistribution(ctx context.Context, since time.Time) ([]domain.StatusCount, error)
	ChannelCounts(ctx context.Context, since time.Time) ([]domain.ChannelCount, error)
	Summary(ctx context.Context, now time.Time) (*domain.Summary, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	syncer      Syncer
	orders      OrderReader
	db          Pinger
	syncTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func NewHandler(syncer Syncer, orders OrderReader, db Pinger, syncTimeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		syncer:      syncer,
		orders:      orders,
		db:          db,
		syncTimeout: syncTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// SyncResult is the success payload of the sync endpoints.
type SyncResult struct {
	Count     int               `json:"count"`
	Mode      domain.SyncMode   `json:"mode"`
	Timestamp time.Time         `json:"timestamp"`
	Stats     *domain.SyncStats `json:"stats"`
}

func (h *Handler) SyncIncremental(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, domain.SyncIncremental, h.syncer.SyncIncremental)
}

// SyncFull accepts ?days= (history window) and ?max= (order ceiling).
func (h *Handler) SyncFull(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 0)
	if err != nil {
		WriteError(w, err)
		return
	}
	maxOrders, err := queryInt(r, "max", 0)
	if err != nil {
		WriteError(w, err)
		return
	}

	opts := service.FullOptions{MaxOrders: maxOrders}
	if days > 0 {
		since := h.now().AddDate(0, 0, -days)
		opts.Since = &since
	}

	h.runSync(w, r, domain.SyncFull, func(ctx context.Context) (*domain.SyncStats, error) {
		return h.syncer.SyncFull(ctx, opts)
	})
}

func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		WriteError(w, err)
		return
	}

	h.runSync(w, r, domain.SyncBackfill, func(ctx context.Context) (*domain.SyncStats, error) {
		return h.syncer.Backfill(ctx, limit)
	})
}

func (h *Handler) runSync(w http.ResponseWriter, r *http.Request, mode domain.SyncMode, fn func(context.Context) (*domain.SyncStats, error)) {
	ctx := r.Context()
	if h.syncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.syncTimeout)
		defer cancel()
	}

	stats, err := fn(ctx)
	if err != nil {
		WriteError(w, syncError(err).WithCount(stats.Processed()))
		return
	}

	count := stats.Processed()
	if mode == domain.SyncBackfill {
		count = stats.Backfilled
	}
	OK(w, SyncResult{
		Count:     count,
		Mode:      mode,
		Timestamp: h.now().UTC(),
		Stats:     stats,
	})
}

func syncError(err error) *Error {
	switch {
	case errors.Is(err, lease.ErrSyncInProgress):
		return Conflict("A sync is already in progress")
	case errors.Is(err, domain.ErrUnauthorized):
		return BadGateway("UPSTREAM_UNAUTHORIZED", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return GatewayTimeout("Sync did not finish in time")
	default:
		return InternalError(err.Error())
	}
}

func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	OK(w, h.syncer.Status())
}

// ListOrders accepts ?limit, ?offset, ?channel (platform family) and
// ?payment_status (PAID or UNPAID).
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", postgres.DefaultListLimit)
	if err != nil {
		WriteError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		WriteError(w, err)
		return
	}
	if limit > postgres.MaxListLimit {
		limit = postgres.MaxListLimit
	}

	filter := domain.OrderFilter{
		Limit:    limit,
		Offset:   offset,
		Platform: r.URL.Query().Get("channel"),
	}
	if ps := r.URL.Query().Get("payment_status"); ps != "" {
		status := domain.PaymentStatus(strings.ToUpper(ps))
		if status != domain.PaymentPaid && status != domain.PaymentUnpaid {
			WriteError(w, BadRequest("payment_status must be PAID or UNPAID"))
			return
		}
		filter.PaymentStatus = status
	}

	orders, err := h.orders.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list orders", "error", err)
		WriteError(w, InternalError("failed to list orders"))
		return
	}
	OKWithMeta(w, orders, Meta{Limit: limit, Offset: offset, Count: len(orders)})
}

// GetOrder returns the stored order. Orders stored without a shipping
// address are refreshed from upstream first; a failed refresh falls back to
// the stored record.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	order, err := h.orders.Get(r.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		WriteError(w, NotFound("Order not found"))
		return
	}
	if err != nil {
		h.logger.Error("get order", "order_id", id, "error", err)
		WriteError(w, InternalError("failed to load order"))
		return
	}

	if order.Shipping == nil {
		refreshed, err := h.syncer.RefreshOrder(r.Context(), id)
		if err != nil {
			h.logger.Warn("refresh order from upstream", "order_id", id, "error", err)
		} else {
			order = refreshed
		}
	}
	OK(w, order)
}

func (h *Handler) Statuses(w http.ResponseWriter, r *http.Request) {
	since, err := h.sinceDays(r, 90)
	if err != nil {
		WriteError(w, err)
		return
	}
	counts, err := h.orders.StatusDistribution(r.Context(), since)
	if err != nil {
		h.logger.Error("status distribution", "error", err)
		WriteError(w, InternalError("failed to load statuses"))
		return
	}
	OK(w, counts)
}

func (h *Handler) Channels(w http.ResponseWriter, r *http.Request) {
	since, err := h.sinceDays(r, 30)
	if err != nil {
		WriteError(w, err)
		return
	}
	counts, err := h.orders.ChannelCounts(r.Context(), since)
	if err != nil {
		h.logger.Error("channel counts", "error", err)
		WriteError(w, InternalError("failed to load channels"))
		return
	}
	OK(w, counts)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.orders.Summary(r.Context(), h.now())
	if err != nil {
		h.logger.Error("summary", "error", err)
		WriteError(w, InternalError("failed to load summary"))
		return
	}
	OK(w, summary)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		WriteError(w, ServiceUnavailable("database unreachable"))
		return
	}
	OK(w, map[string]string{"status": "ok"})
}

func (h *Handler) sinceDays(r *http.Request, def int) (time.Time, error) {
	days, err := queryInt(r, "days", def)
	if err != nil {
		return time.Time{}, err
	}
	if days <= 0 {
		days = def
	}
	return h.now().AddDate(0, 0, -days), nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, BadRequest(name + " must be a non-negative integer")
	}
	return n, nil
}
