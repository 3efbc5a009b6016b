package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"order_sync/internal/domain"
	"order_sync/internal/service"
)

func syncCmd(configPath *string) *cobra.Command {
	var (
		full      bool
		days      int
		maxOrders int
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass and print its statistics",
		Long: `Run one sync pass against the upstream API.

Without flags an incremental pass pages the recency windows since the last
watermark. With --full the whole order list is swept newest first, bounded by
--days and --max-orders.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Sync.Timeout)
			defer cancel()

			var stats *domain.SyncStats
			if full {
				opts := service.FullOptions{MaxOrders: maxOrders}
				if days > 0 {
					since := time.Now().AddDate(0, 0, -days)
					opts.Since = &since
				}
				stats, err = a.sync.SyncFull(ctx, opts)
			} else {
				stats, err = a.sync.SyncIncremental(ctx)
			}

			printStats(stats)
			return err
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "sweep the full order history")
	cmd.Flags().IntVar(&days, "days", 0, "with --full, only orders placed in the last N days")
	cmd.Flags().IntVar(&maxOrders, "max-orders", 0, "with --full, stop after N orders")
	return cmd
}

func backfillCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Refetch stored orders that lack a shipping window",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Sync.Timeout)
			defer cancel()

			stats, err := a.sync.Backfill(ctx, limit)
			printStats(stats)
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum orders to refetch (default sync.backfill_limit)")
	return cmd
}

func printStats(stats *domain.SyncStats) {
	if stats == nil {
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(stats)
}
