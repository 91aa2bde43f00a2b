package cli

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"dayplan/backend/internal/config"
	"dayplan/backend/internal/store/postgres"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the calendars table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(os.Stdout, cfg.LogLevel, cfg.VerboseLogging)
			if cfg.DatabaseURL == "" {
				return errors.New("DAYPLAN_DATABASE_URL is not set")
			}

			log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
			db, err := postgres.Open(cmd.Context(), cfg.DatabaseURL, postgres.PoolConfig{MaxOpenConns: 1})
			if err != nil {
				return err
			}
			defer func() {
				if err := postgres.Close(db); err != nil {
					log.Warn("database close failed", slog.Any("err", err))
				}
			}()

			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}
}
