package apilo

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"order_sync/internal/domain"
)

const (
	SourceID   = "apilo"
	SourceName = "Apilo"

	ordersPath = "/rest/api/orders/"

	// MaxPageSize is the largest page the upstream list endpoint serves.
	MaxPageSize = 512
)

// Source implements service.Source for the Apilo order API.
type Source struct {
	client    requester
	platforms *Directory
	pageSize  int
	logger    *slog.Logger
}

// New creates a new Apilo source.
func New(client requester, platforms *Directory, pageSize int, logger *slog.Logger) *Source {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return &Source{
		client:    client,
		platforms: platforms,
		pageSize:  pageSize,
		logger:    logger.With("source", SourceID),
	}
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (s *Source) Name() string {
	return SourceName
}

// PageSize is the number of orders requested per page.
func (s *Source) PageSize() int {
	return s.pageSize
}

// EnsurePlatforms loads the platform directory if it is not loaded yet.
func (s *Source) EnsurePlatforms(ctx context.Context) error {
	return s.platforms.Ensure(ctx)
}

// FetchPage fetches and maps one page of the order list. Rows map one to one,
// so a row without a usable id comes back with an empty ID.
func (s *Source) FetchPage(ctx context.Context, q domain.OrderQuery) ([]domain.Order, error) {
	if err := s.platforms.Ensure(ctx); err != nil {
		return nil, err
	}

	var resp OrdersResponse
	if err := s.client.Do(ctx, http.MethodGet, s.listPath(q), nil, &resp); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		orders = append(orders, Map(o, s.platforms))
	}

	s.logger.Debug("fetched page",
		"offset", q.Offset,
		"orders", len(orders),
		"total", resp.TotalCount.Value,
	)

	return orders, nil
}

// FetchOrder fetches the detail representation of one order.
func (s *Source) FetchOrder(ctx context.Context, id string) (*domain.Order, error) {
	if err := s.platforms.Ensure(ctx); err != nil {
		return nil, err
	}

	var o Order
	if err := s.client.Do(ctx, http.MethodGet, ordersPath+url.PathEscape(id)+"/", nil, &o); err != nil {
		return nil, err
	}

	if !hasID(o) {
		return nil, fmt.Errorf("order %s: response carries no id", id)
	}

	mapped := Map(o, s.platforms)
	return &mapped, nil
}

func hasID(o Order) bool {
	return o.ID.Valid && o.ID.Value > 0
}

func (s *Source) listPath(q domain.OrderQuery) string {
	limit := q.Limit
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}

	v := url.Values{}
	v.Set("limit", strconv.Itoa(limit))
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	if q.OrderedAfter != nil {
		v.Set("orderedAfter", q.OrderedAfter.UTC().Format(time.RFC3339))
	}
	if q.UpdatedAfter != nil {
		v.Set("updatedAfter", q.UpdatedAfter.UTC().Format(time.RFC3339))
	}

	return fmt.Sprintf("%s?%s", ordersPath, v.Encode())
}
