package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"order_sync/internal/domain"
	"order_sync/internal/storage/postgres"
)

func setTokenCmd(configPath *string) *cobra.Command {
	var (
		access    string
		refresh   string
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "set-token",
		Short: "Store the initial upstream credential",
		Long: `Store the upstream access and refresh tokens issued in the Apilo panel.

Without --expires-in the access token is treated as expired, so the first
request refreshes it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if access == "" && refresh == "" {
				return errors.New("at least one of --access or --refresh is required")
			}

			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			db, err := connectDB(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			cred := &domain.Credential{AccessToken: access, RefreshToken: refresh}
			if expiresIn > 0 {
				cred.ExpiresAt = time.Now().Add(expiresIn)
			}

			if err := postgres.NewCredentialStore(db).Save(cmd.Context(), cred); err != nil {
				return fmt.Errorf("save credential: %w", err)
			}
			logger.Info("credential stored", "expires_at", cred.ExpiresAt)
			return nil
		},
	}

	cmd.Flags().StringVar(&access, "access", "", "access token")
	cmd.Flags().StringVar(&refresh, "refresh", "", "refresh token")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "remaining lifetime of the access token")
	return cmd
}
