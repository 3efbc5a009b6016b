//go:build integration

package postgres

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"order_sync/internal/domain"
	"order_sync/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.Require().NoError(Migrate(connStr, logger))
	// second run is a no-op
	s.Require().NoError(Migrate(connStr, logger))

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM order_items")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM orders")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM sync_state")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM tokens")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func sampleOrder(id string, orderedAt time.Time) domain.Order {
	return domain.Order{
		ID:         id,
		ExternalID: utils.Ptr("EXT-" + id),
		Channel:    domain.Channel{Label: "Amazon DE", Platform: "Amazon"},
		Dates: domain.OrderDates{
			OrderedAt: utils.Ptr(orderedAt),
			UpdatedAt: utils.Ptr(orderedAt),
		},
		Status: domain.OrderStatus{
			PaymentStatus:      domain.PaymentPaid,
			PaymentStatusCode:  2,
			DeliveryStatusCode: utils.Ptr(domain.ShippedStatusCode),
		},
		Financials: domain.Financials{
			TotalGross: decimal.RequireFromString("200.00"),
			TotalNet:   decimal.RequireFromString("162.60"),
			Currency:   "PLN",
			PaidAmount: decimal.RequireFromString("200.00"),
		},
		Shipping: &domain.Address{Name: "Jan Kowalski", City: "Warszawa", Country: "PL"},
		Payments: []domain.Payment{{ID: 7, Amount: decimal.RequireFromString("200.00"), Currency: "PLN", Type: 1}},
		Items: []domain.LineItem{
			{Name: "Chair", Quantity: 2, UnitPriceGross: decimal.RequireFromString("100"), LineTotalGross: decimal.RequireFromString("200")},
			{Name: "Courier", Quantity: 1, IsShippingLine: true},
		},
	}
}

func (s *PostgresIntegrationSuite) TestOrderStore_UpsertBatch_ReportsCreated() {
	store := NewOrderStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	created, err := store.UpsertBatch(s.ctx, []domain.Order{sampleOrder("1", now), sampleOrder("2", now)})
	s.Require().NoError(err)
	s.ElementsMatch([]string{"1", "2"}, created)

	created, err = store.UpsertBatch(s.ctx, []domain.Order{sampleOrder("2", now), sampleOrder("3", now)})
	s.Require().NoError(err)
	s.Equal([]string{"3"}, created)

	var count int
	s.Require().NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM orders"))
	s.Equal(3, count)
}

func (s *PostgresIntegrationSuite) TestOrderStore_UpsertBatch_OverwritesWholesale() {
	store := NewOrderStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := store.UpsertBatch(s.ctx, []domain.Order{sampleOrder("1", now)})
	s.Require().NoError(err)

	changed := sampleOrder("1", now)
	changed.Shipping = nil
	changed.Status.PaymentStatus = domain.PaymentUnpaid
	changed.Items = changed.Items[:1]
	_, err = store.UpsertBatch(s.ctx, []domain.Order{changed})
	s.Require().NoError(err)

	got, err := store.Get(s.ctx, "1")
	s.Require().NoError(err)
	s.Nil(got.Shipping)
	s.Equal(domain.PaymentUnpaid, got.Status.PaymentStatus)
	s.Len(got.Items, 1)
	s.Equal("Chair", got.Items[0].Name)
}

func (s *PostgresIntegrationSuite) TestOrderStore_Get_RoundTrip() {
	store := NewOrderStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)
	order := sampleOrder("42", now)

	_, err := store.UpsertBatch(s.ctx, []domain.Order{order})
	s.Require().NoError(err)

	got, err := store.Get(s.ctx, "42")
	s.Require().NoError(err)
	s.Equal("EXT-42", *got.ExternalID)
	s.Equal(order.Channel, got.Channel)
	s.True(order.Financials.TotalGross.Equal(got.Financials.TotalGross))
	s.Equal(domain.ShippedStatusCode, *got.Status.DeliveryStatusCode)
	s.WithinDuration(now, *got.Dates.OrderedAt, time.Millisecond)
	s.Equal("Warszawa", got.Shipping.City)
	s.Len(got.Payments, 1)
	s.Len(got.Items, 2)
	s.True(got.Items[1].IsShippingLine)

	_, err = store.Get(s.ctx, "missing")
	s.ErrorIs(err, ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestOrderStore_ListAndMissingSendDates() {
	store := NewOrderStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	older := sampleOrder("1", now.Add(-time.Hour))
	older.Dates.SendDateMin = utils.Ptr(now)
	newer := sampleOrder("2", now)
	newer.Channel = domain.Channel{Label: "Allegro", Platform: "Allegro"}
	_, err := store.UpsertBatch(s.ctx, []domain.Order{older, newer})
	s.Require().NoError(err)

	all, err := store.List(s.ctx, domain.OrderFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal("2", all[0].ID)

	amazon, err := store.List(s.ctx, domain.OrderFilter{Platform: "Amazon"})
	s.Require().NoError(err)
	s.Require().Len(amazon, 1)
	s.Equal("1", amazon[0].ID)

	ids, err := store.MissingSendDates(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal([]string{"2"}, ids)
}

func (s *PostgresIntegrationSuite) TestOrderStore_Aggregates() {
	store := NewOrderStore(s.db)
	now := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)

	yesterday := sampleOrder("2", now.AddDate(0, 0, -1))
	yesterday.Status.DeliveryStatusCode = utils.Ptr(4)
	_, err := store.UpsertBatch(s.ctx, []domain.Order{sampleOrder("1", now), yesterday})
	s.Require().NoError(err)

	summary, err := store.Summary(s.ctx, now)
	s.Require().NoError(err)
	s.Equal(int64(1), summary.OrdersToday)
	s.Equal(int64(1), summary.OrdersYesterday)
	s.Equal(int64(1), summary.ShippedToday)
	s.Equal(int64(0), summary.ShippedYesterday)
	s.Equal(int64(2), summary.TotalOrders)
	s.Require().Len(summary.Revenue30Days, 1)
	s.Equal("PLN", summary.Revenue30Days[0].Currency)
	s.True(decimal.RequireFromString("400").Equal(summary.Revenue30Days[0].Total))

	statuses, err := store.StatusDistribution(s.ctx, now.AddDate(0, 0, -90))
	s.Require().NoError(err)
	s.Len(statuses, 2)

	channels, err := store.ChannelCounts(s.ctx, now.AddDate(0, 0, -30))
	s.Require().NoError(err)
	s.Require().Len(channels, 1)
	s.Equal(int64(2), channels[0].Count)
}

func (s *PostgresIntegrationSuite) TestCredentialStore_SaveAndGet() {
	store := NewCredentialStore(s.db)

	cred, err := store.Get(s.ctx)
	s.Require().NoError(err)
	s.Nil(cred)

	expires := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	s.Require().NoError(store.Save(s.ctx, &domain.Credential{AccessToken: "a", RefreshToken: "r", ExpiresAt: expires}))
	s.Require().NoError(store.Save(s.ctx, &domain.Credential{AccessToken: "b", RefreshToken: "r", ExpiresAt: expires}))

	cred, err = store.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal("b", cred.AccessToken)
	s.True(expires.Equal(cred.ExpiresAt))

	var rows int
	s.Require().NoError(s.db.GetContext(s.ctx, &rows, "SELECT COUNT(*) FROM tokens"))
	s.Equal(1, rows)
}

func (s *PostgresIntegrationSuite) TestSyncStateStore_GetNew() {
	store := NewSyncStateStore(s.db)

	state, err := store.Get(s.ctx, "incremental")
	s.NoError(err)
	s.NotNil(state)
	s.Equal("incremental", state.Mode)
	s.True(state.LastSyncedAt.IsZero())
	s.Equal(int64(0), state.TotalSynced)
}

func (s *PostgresIntegrationSuite) TestSyncStateStore_UpdateExisting() {
	store := NewSyncStateStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	state := &domain.SyncState{Mode: "full", LastSyncedAt: now, LastOrderID: "100", TotalSynced: 10}
	s.Require().NoError(store.Update(s.ctx, state))

	state.LastOrderID = "200"
	state.TotalSynced = 20
	s.Require().NoError(store.Update(s.ctx, state))

	retrieved, err := store.Get(s.ctx, "full")
	s.NoError(err)
	s.Equal("200", retrieved.LastOrderID)
	s.Equal(int64(20), retrieved.TotalSynced)
	s.WithinDuration(now, retrieved.LastSyncedAt, time.Second)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	store := NewOrderStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		_, err := store.UpsertBatch(ctx, []domain.Order{sampleOrder("999", now)})
		return err
	})
	s.NoError(err)

	_, err = store.Get(s.ctx, "999")
	s.NoError(err)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	store := NewOrderStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := store.UpsertBatch(s.ctx, []domain.Order{sampleOrder("888", now)})
	s.Require().NoError(err)

	err = tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if _, err := store.UpsertBatch(ctx, []domain.Order{sampleOrder("777", now)}); err != nil {
			return err
		}
		return context.Canceled
	})
	s.Error(err)

	_, err = store.Get(s.ctx, "777")
	s.ErrorIs(err, ErrNotFound)

	_, err = store.Get(s.ctx, "888")
	s.NoError(err)
}
