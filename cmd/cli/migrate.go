package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theblitlabs/parity-stake/internal/core/config"
	"github.com/theblitlabs/parity-stake/internal/storage/db"
	"github.com/theblitlabs/parity-stake/internal/utils"
	"github.com/theblitlabs/parity-stake/pkg/logger"
)

// MigrateCommand creates or updates the ledger tables.
func MigrateCommand() *cobra.Command {
	log := logger.WithComponent("migrate")

	return utils.CreateCommand(utils.CommandConfig{
		Use:   "migrate",
		Short: "Run database migrations",
		RunFunc: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.GetConfigManager().GetConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !cfg.Database.Enabled() {
				return fmt.Errorf("DATABASE_HOST is not set")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			manager := db.NewDBManager()
			log.Info().Str("host", cfg.Database.Host).Str("database", cfg.Database.DatabaseName).Msg("Starting database migrations")
			if err := manager.Connect(ctx, cfg.Database.GetConnectionURL()); err != nil {
				return err
			}
			defer func() {
				if err := manager.Close(); err != nil {
					log.Warn().Err(err).Msg("Error closing database connection")
				}
			}()

			var tables []string
			if err := manager.GetDB().WithContext(ctx).
				Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public'").
				Scan(&tables).Error; err != nil {
				return fmt.Errorf("failed to list tables: %w", err)
			}
			log.Info().Strs("tables", tables).Msg("All database migrations completed successfully")
			return nil
		},
	}, log)
}
