package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"order_sync/internal/api"
	"order_sync/internal/scheduler"
	"order_sync/internal/storage/postgres"
)

func serveCmd(configPath *string) *cobra.Command {
	var (
		migrate     bool
		noScheduler bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled incremental sync and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if migrate {
				cfg, logger, err := loadConfig(*configPath)
				if err != nil {
					return err
				}
				if err := postgres.Migrate(cfg.Database.DSN(), logger); err != nil {
					return err
				}
			}

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			handler := api.NewHandler(a.sync, a.orders, a.db, a.cfg.Sync.Timeout, a.logger.With("component", "api"))
			router := api.NewRouter(api.RouterConfig{
				Handler:  handler,
				Metrics:  a.metrics.Handler(),
				APIToken: a.cfg.HTTP.APIToken,
				Logger:   a.logger.With("component", "http"),
			})
			server := api.NewServer(a.cfg.HTTP, router, a.logger)

			a.logger.Info("starting order syncer",
				"interval", a.cfg.Sync.Interval,
				"timeout", a.cfg.Sync.Timeout,
				"page_size", a.cfg.Upstream.PageSize,
				"scheduler", !noScheduler,
			)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Run(gctx)
			})
			if !noScheduler {
				sched := scheduler.NewScheduler(a.sync, a.cfg.Sync.Interval, a.cfg.Sync.Timeout, a.logger.With("component", "scheduler"))
				g.Go(func() error {
					if err := sched.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
			}

			err = g.Wait()
			a.logger.Info("order syncer stopped")
			return err
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply schema migrations before starting")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the HTTP API without the periodic sync")
	return cmd
}
