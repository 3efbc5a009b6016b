package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"order_sync/internal/domain"
)

var ErrNotFound = errors.New("order not found")

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type OrderStore struct {
	db *sqlx.DB
}

func NewOrderStore(db *sqlx.DB) *OrderStore {
	return &OrderStore{db: db}
}

const orderColumns = `id, external_id, channel_label, channel_platform,
	ordered_at, updated_at, shipping_date, send_date_min, send_date_max,
	payment_status, payment_status_code, delivery_status, is_invoice, is_canceled,
	total_gross, total_net, currency, paid_amount,
	customer_address, shipping_address, invoice_address, payments, notes`

type orderRow struct {
	ID                string          `db:"id"`
	ExternalID        sql.NullString  `db:"external_id"`
	ChannelLabel      string          `db:"channel_label"`
	ChannelPlatform   string          `db:"channel_platform"`
	OrderedAt         sql.NullTime    `db:"ordered_at"`
	UpdatedAt         sql.NullTime    `db:"updated_at"`
	ShippingDate      sql.NullTime    `db:"shipping_date"`
	SendDateMin       sql.NullTime    `db:"send_date_min"`
	SendDateMax       sql.NullTime    `db:"send_date_max"`
	PaymentStatus     string          `db:"payment_status"`
	PaymentStatusCode int             `db:"payment_status_code"`
	DeliveryStatus    sql.NullInt64   `db:"delivery_status"`
	IsInvoice         bool            `db:"is_invoice"`
	IsCanceled        bool            `db:"is_canceled"`
	TotalGross        decimal.Decimal `db:"total_gross"`
	TotalNet          decimal.Decimal `db:"total_net"`
	Currency          string          `db:"currency"`
	PaidAmount        decimal.Decimal `db:"paid_amount"`
	CustomerAddress   []byte          `db:"customer_address"`
	ShippingAddress   []byte          `db:"shipping_address"`
	InvoiceAddress    []byte          `db:"invoice_address"`
	Payments          []byte          `db:"payments"`
	Notes             []byte          `db:"notes"`
}

type itemRow struct {
	OrderID        string          `db:"order_id"`
	Position       int             `db:"position"`
	Name           string          `db:"name"`
	SKU            string          `db:"sku"`
	EAN            string          `db:"ean"`
	Quantity       int             `db:"quantity"`
	UnitPriceGross decimal.Decimal `db:"unit_price_gross"`
	LineTotalGross decimal.Decimal `db:"line_total_gross"`
	ImageURL       sql.NullString  `db:"image_url"`
	IsShippingLine bool            `db:"is_shipping_line"`
}

// UpsertBatch overwrites every order row and its line items. It runs on the
// transaction carried by ctx when there is one.
func (s *OrderStore) UpsertBatch(ctx context.Context, orders []domain.Order) ([]string, error) {
	if len(orders) == 0 {
		return nil, nil
	}
	exec := GetExecutor(ctx, s.db)

	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}

	var existing []string
	err := sqlx.SelectContext(ctx, exec, &existing, `SELECT id FROM orders WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("select existing orders: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		known[id] = struct{}{}
	}

	var created []string
	for i := range orders {
		order := &orders[i]
		if err := s.upsert(ctx, exec, order); err != nil {
			return nil, fmt.Errorf("upsert order %s: %w", order.ID, err)
		}
		if err := s.replaceItems(ctx, exec, order.ID, order.Items); err != nil {
			return nil, fmt.Errorf("replace items of order %s: %w", order.ID, err)
		}
		if _, ok := known[order.ID]; !ok {
			created = append(created, order.ID)
			known[order.ID] = struct{}{}
		}
	}
	return created, nil
}

func (s *OrderStore) upsert(ctx context.Context, exec sqlx.ExtContext, o *domain.Order) error {
	customer, err := jsonValue(o.Customer)
	if err != nil {
		return err
	}
	shipping, err := jsonValue(o.Shipping)
	if err != nil {
		return err
	}
	invoice, err := jsonValue(o.Invoice)
	if err != nil {
		return err
	}
	payments, err := jsonList(o.Payments)
	if err != nil {
		return err
	}
	notes, err := jsonList(o.Notes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (id) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			channel_label = EXCLUDED.channel_label,
			channel_platform = EXCLUDED.channel_platform,
			ordered_at = EXCLUDED.ordered_at,
			updated_at = EXCLUDED.updated_at,
			shipping_date = EXCLUDED.shipping_date,
			send_date_min = EXCLUDED.send_date_min,
			send_date_max = EXCLUDED.send_date_max,
			payment_status = EXCLUDED.payment_status,
			payment_status_code = EXCLUDED.payment_status_code,
			delivery_status = EXCLUDED.delivery_status,
			is_invoice = EXCLUDED.is_invoice,
			is_canceled = EXCLUDED.is_canceled,
			total_gross = EXCLUDED.total_gross,
			total_net = EXCLUDED.total_net,
			currency = EXCLUDED.currency,
			paid_amount = EXCLUDED.paid_amount,
			customer_address = EXCLUDED.customer_address,
			shipping_address = EXCLUDED.shipping_address,
			invoice_address = EXCLUDED.invoice_address,
			payments = EXCLUDED.payments,
			notes = EXCLUDED.notes`

	_, err = exec.ExecContext(ctx, query,
		o.ID,
		o.ExternalID,
		o.Channel.Label,
		o.Channel.Platform,
		o.Dates.OrderedAt,
		o.Dates.UpdatedAt,
		o.Dates.ShippingDate,
		o.Dates.SendDateMin,
		o.Dates.SendDateMax,
		string(o.Status.PaymentStatus),
		o.Status.PaymentStatusCode,
		o.Status.DeliveryStatusCode,
		o.Status.IsInvoice,
		o.Status.IsCanceled,
		o.Financials.TotalGross,
		o.Financials.TotalNet,
		o.Financials.Currency,
		o.Financials.PaidAmount,
		customer,
		shipping,
		invoice,
		payments,
		notes,
	)
	return err
}

const itemColumns = 10

func (s *OrderStore) replaceItems(ctx context.Context, exec sqlx.ExtContext, orderID string, items []domain.LineItem) error {
	_, err := exec.ExecContext(ctx, "DELETE FROM order_items WHERE order_id = $1", orderID)
	if err != nil {
		return err
	}

	if len(items) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO order_items (order_id, position, name, sku, ean, quantity,
		unit_price_gross, line_total_gross, image_url, is_shipping_line) VALUES `)
	args := make([]interface{}, 0, len(items)*itemColumns)

	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for c := 0; c < itemColumns; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(i*itemColumns + c + 1))
		}
		sb.WriteString(")")
		args = append(args,
			orderID,
			i,
			item.Name,
			item.SKU,
			item.EAN,
			item.Quantity,
			item.UnitPriceGross,
			item.LineTotalGross,
			item.ImageURL,
			item.IsShippingLine,
		)
	}

	_, err = exec.ExecContext(ctx, sb.String(), args...)
	return err
}

// MissingSendDates returns the newest orders that carry neither shipping
// window bound.
func (s *OrderStore) MissingSendDates(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT id FROM orders
		WHERE send_date_min IS NULL AND send_date_max IS NULL
		ORDER BY ordered_at DESC NULLS LAST
		LIMIT $1`

	var ids []string
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &ids, query, limit)
	return ids, err
}

func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	exec := GetExecutor(ctx, s.db)

	var row orderRow
	err := sqlx.GetContext(ctx, exec, &row, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	orders, err := s.hydrate(ctx, exec, []orderRow{row})
	if err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// List returns stored orders newest first.
func (s *OrderStore) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	exec := GetExecutor(ctx, s.db)

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		where []string
		args  []interface{}
	)
	if filter.Platform != "" {
		args = append(args, filter.Platform)
		where = append(where, "channel_platform = $"+strconv.Itoa(len(args)))
	}
	if filter.PaymentStatus != "" {
		args = append(args, string(filter.PaymentStatus))
		where = append(where, "payment_status = $"+strconv.Itoa(len(args)))
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + orderColumns + " FROM orders")
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, limit, offset)
	sb.WriteString(" ORDER BY ordered_at DESC NULLS LAST, id DESC")
	sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)-1))
	sb.WriteString(" OFFSET $" + strconv.Itoa(len(args)))

	var rows []orderRow
	if err := sqlx.SelectContext(ctx, exec, &rows, sb.String(), args...); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []domain.Order{}, nil
	}
	return s.hydrate(ctx, exec, rows)
}

func (s *OrderStore) hydrate(ctx context.Context, exec sqlx.ExtContext, rows []orderRow) ([]domain.Order, error) {
	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}

	query := `
		SELECT order_id, position, name, sku, ean, quantity,
			unit_price_gross, line_total_gross, image_url, is_shipping_line
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`

	var items []itemRow
	if err := sqlx.SelectContext(ctx, exec, &items, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	byOrder := make(map[string][]domain.LineItem, len(rows))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it.toDomain())
	}

	orders := make([]domain.Order, len(rows))
	for i := range rows {
		order, err := rows[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("decode order %s: %w", rows[i].ID, err)
		}
		order.Items = byOrder[order.ID]
		if order.Items == nil {
			order.Items = []domain.LineItem{}
		}
		orders[i] = order
	}
	return orders, nil
}

func (r *orderRow) toDomain() (domain.Order, error) {
	o := domain.Order{
		ID:      r.ID,
		Channel: domain.Channel{Label: r.ChannelLabel, Platform: r.ChannelPlatform},
		Dates: domain.OrderDates{
			OrderedAt:    nullTime(r.OrderedAt),
			UpdatedAt:    nullTime(r.UpdatedAt),
			ShippingDate: nullTime(r.ShippingDate),
			SendDateMin:  nullTime(r.SendDateMin),
			SendDateMax:  nullTime(r.SendDateMax),
		},
		Status: domain.OrderStatus{
			PaymentStatus:     domain.PaymentStatus(r.PaymentStatus),
			PaymentStatusCode: r.PaymentStatusCode,
			IsInvoice:         r.IsInvoice,
			IsCanceled:        r.IsCanceled,
		},
		Financials: domain.Financials{
			TotalGross: r.TotalGross,
			TotalNet:   r.TotalNet,
			Currency:   r.Currency,
			PaidAmount: r.PaidAmount,
		},
		Payments: []domain.Payment{},
		Notes:    []domain.Note{},
	}
	if r.ExternalID.Valid {
		o.ExternalID = &r.ExternalID.String
	}
	if r.DeliveryStatus.Valid {
		code := int(r.DeliveryStatus.Int64)
		o.Status.DeliveryStatusCode = &code
	}

	var err error
	if o.Customer, err = decodeAddress(r.CustomerAddress); err != nil {
		return o, err
	}
	if o.Shipping, err = decodeAddress(r.ShippingAddress); err != nil {
		return o, err
	}
	if o.Invoice, err = decodeAddress(r.InvoiceAddress); err != nil {
		return o, err
	}
	if len(r.Payments) > 0 {
		if err := json.Unmarshal(r.Payments, &o.Payments); err != nil {
			return o, fmt.Errorf("payments: %w", err)
		}
	}
	if len(r.Notes) > 0 {
		if err := json.Unmarshal(r.Notes, &o.Notes); err != nil {
			return o, fmt.Errorf("notes: %w", err)
		}
	}
	return o, nil
}

func (r *itemRow) toDomain() domain.LineItem {
	item := domain.LineItem{
		Name:           r.Name,
		SKU:            r.SKU,
		EAN:            r.EAN,
		Quantity:       r.Quantity,
		UnitPriceGross: r.UnitPriceGross,
		LineTotalGross: r.LineTotalGross,
		IsShippingLine: r.IsShippingLine,
	}
	if r.ImageURL.Valid {
		item.ImageURL = &r.ImageURL.String
	}
	return item
}

// StatusDistribution counts orders placed since the given instant per
// upstream delivery status.
func (s *OrderStore) StatusDistribution(ctx context.Context, since time.Time) ([]domain.StatusCount, error) {
	query := `
		SELECT delivery_status AS status, COUNT(*) AS count
		FROM orders
		WHERE ordered_at >= $1
		GROUP BY delivery_status
		ORDER BY count DESC, status`

	counts := []domain.StatusCount{}
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &counts, query, since)
	return counts, err
}

func (s *OrderStore) ChannelCounts(ctx context.Context, since time.Time) ([]domain.ChannelCount, error) {
	query := `
		SELECT channel_label AS label, channel_platform AS platform, COUNT(*) AS count
		FROM orders
		WHERE ordered_at >= $1
		GROUP BY channel_label, channel_platform
		ORDER BY count DESC, label`

	counts := []domain.ChannelCount{}
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &counts, query, since)
	return counts, err
}

type summaryCounts struct {
	OrdersToday      int64 `db:"orders_today"`
	OrdersYesterday  int64 `db:"orders_yesterday"`
	ShippedToday     int64 `db:"shipped_today"`
	ShippedYesterday int64 `db:"shipped_yesterday"`
	TotalOrders      int64 `db:"total_orders"`
}

// Summary reports the dashboard headline. Days start at midnight in now's
// location.
func (s *OrderStore) Summary(ctx context.Context, now time.Time) (*domain.Summary, error) {
	exec := GetExecutor(ctx, s.db)

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)
	monthAgo := today.AddDate(0, 0, -30)

	countsQuery := `
		SELECT
			COUNT(*) FILTER (WHERE ordered_at >= $1) AS orders_today,
			COUNT(*) FILTER (WHERE ordered_at >= $2 AND ordered_at < $1) AS orders_yesterday,
			COUNT(*) FILTER (WHERE ordered_at >= $1 AND delivery_status = $3) AS shipped_today,
			COUNT(*) FILTER (WHERE ordered_at >= $2 AND ordered_at < $1 AND delivery_status = $3) AS shipped_yesterday,
			COUNT(*) AS total_orders
		FROM orders`

	var counts summaryCounts
	if err := sqlx.GetContext(ctx, exec, &counts, countsQuery, today, yesterday, domain.ShippedStatusCode); err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	summary := &domain.Summary{
		OrdersToday:      counts.OrdersToday,
		OrdersYesterday:  counts.OrdersYesterday,
		ShippedToday:     counts.ShippedToday,
		ShippedYesterday: counts.ShippedYesterday,
		TotalOrders:      counts.TotalOrders,
	}

	var err error
	if summary.TodayByPlatform, err = s.platformCounts(ctx, exec, today); err != nil {
		return nil, err
	}
	if summary.Last30DaysByPlatform, err = s.platformCounts(ctx, exec, monthAgo); err != nil {
		return nil, err
	}
	if summary.RevenueToday, err = s.revenue(ctx, exec, today); err != nil {
		return nil, err
	}
	if summary.Revenue30Days, err = s.revenue(ctx, exec, monthAgo); err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *OrderStore) platformCounts(ctx context.Context, exec sqlx.ExtContext, since time.Time) ([]domain.PlatformCount, error) {
	query := `
		SELECT channel_platform AS platform, COUNT(*) AS count
		FROM orders
		WHERE ordered_at >= $1
		GROUP BY channel_platform
		ORDER BY count DESC, platform`

	counts := []domain.PlatformCount{}
	if err := sqlx.SelectContext(ctx, exec, &counts, query, since); err != nil {
		return nil, fmt.Errorf("count platforms: %w", err)
	}
	return counts, nil
}

// revenue sums gross totals of orders that were not canceled, per currency.
func (s *OrderStore) revenue(ctx context.Context, exec sqlx.ExtContext, since time.Time) ([]domain.CurrencyTotal, error) {
	query := `
		SELECT currency, COALESCE(SUM(total_gross), 0) AS total
		FROM orders
		WHERE ordered_at >= $1 AND NOT is_canceled
		GROUP BY currency
		ORDER BY currency`

	totals := []domain.CurrencyTotal{}
	if err := sqlx.SelectContext(ctx, exec, &totals, query, since); err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}
	return totals, nil
}

// jsonValue encodes an address for a nullable JSONB column. lib/pq sends
// []byte as bytea, so the document goes out as text.
func jsonValue(a *domain.Address) (interface{}, error) {
	if a == nil {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonList[T any](list []T) (string, error) {
	if list == nil {
		return "[]", nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeAddress(raw []byte) (*domain.Address, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var a domain.Address
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("address: %w", err)
	}
	return &a, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
