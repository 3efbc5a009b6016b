package main

import (
	"github.com/spf13/cobra"

	"order_sync/internal/storage/postgres"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return postgres.Migrate(cfg.Database.DSN(), logger)
		},
	}
}
