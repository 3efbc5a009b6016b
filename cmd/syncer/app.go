package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"order_sync/internal/config"
	"order_sync/internal/lease"
	"order_sync/internal/metrics"
	"order_sync/internal/publisher"
	"order_sync/internal/service"
	"order_sync/internal/source/apilo"
	"order_sync/internal/storage/postgres"
)

// app holds the wired dependencies shared by all commands.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	db          *sqlx.DB
	redis       *redis.Client
	rabbitMQ    *publisher.RabbitMQ
	metrics     *metrics.Recorder
	orders      *postgres.OrderStore
	credentials *postgres.CredentialStore
	sync        *service.SyncService
}

func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, setupLogger(cfg.LogLevel), nil
}

func connectDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)
	return db, nil
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	db, err := connectDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		metrics:     metrics.New(),
		orders:      postgres.NewOrderStore(db),
		credentials: postgres.NewCredentialStore(db),
	}

	var locker service.Locker = lease.NewMemory()
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		locker = lease.NewRedis(a.redis, logger)
		logger.Info("using redis sync lease", "addr", cfg.Redis.Addr)
	} else {
		logger.Info("using in-process sync lease")
	}

	var pub service.Publisher
	if cfg.RabbitMQ.URL != "" {
		a.rabbitMQ, err = publisher.NewRabbitMQ(cfg.RabbitMQ, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		pub = a.rabbitMQ
	} else {
		logger.Info("order events disabled, rabbitmq.url is empty")
	}

	client := apilo.NewClient(apilo.Config{
		BaseURL:            cfg.Upstream.BaseURL,
		ClientID:           cfg.Upstream.ClientID,
		ClientSecret:       cfg.Upstream.ClientSecret,
		PageSize:           cfg.Upstream.PageSize,
		Timeout:            cfg.Upstream.Timeout,
		MinRequestInterval: cfg.Upstream.MinRequestInterval(),
	}, a.credentials, logger)
	source := apilo.New(client, apilo.NewDirectory(client, logger), cfg.Upstream.PageSize, logger)

	a.sync = service.NewSyncService(
		source,
		a.orders,
		postgres.NewSyncStateStore(db),
		postgres.NewTransactionManager(db),
		pub,
		locker,
		a.metrics,
		logger,
		cfg.Sync,
	)

	return a, nil
}

func (a *app) Close() {
	if a.rabbitMQ != nil {
		if err := a.rabbitMQ.Close(); err != nil {
			a.logger.Warn("close rabbitmq", "error", err)
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
