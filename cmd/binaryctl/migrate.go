package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"binary-comp-engine/internal/config"
	"binary-comp-engine/internal/storage/migrations"
	pgstore "binary-comp-engine/internal/storage/postgres"
)

// NewCmdMigrate applies the embedded Postgres and ClickHouse migrations.
func NewCmdMigrate(rf *RootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply the embedded Postgres migrations, and the ClickHouse ones when CLICKHOUSE_DSN is set.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := rf.setup()
			if err != nil {
				return err
			}
			if cfg.Storage != config.StoragePostgres {
				return errors.New("migrate requires STORAGE=postgres")
			}
			ctx := cmd.Context()

			pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.RunPostgresMigrations(ctx, pool)
			if err != nil {
				return err
			}
			log.Info().Strs("files", applied).Msg("postgres migrations applied")

			if cfg.ClickhouseDSN == "" {
				return nil
			}
			conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
			if err != nil {
				return fmt.Errorf("clickhouse: %w", err)
			}
			defer conn.Close()
			log.Info().Msg("clickhouse migrations applied")
			return nil
		},
	}
}
