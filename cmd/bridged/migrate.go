package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bridge-ledger/internal/logging"
	"bridge-ledger/internal/storage/migrations"
	pgstore "bridge-ledger/internal/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL and ClickHouse migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.UseMemory {
			return fmt.Errorf("migrate needs a database; unset --use-memory")
		}
		logger := logging.Component(logging.New(cfg.LogLevel, cfg.LogPretty), "migrations")
		ctx := cmd.Context()

		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		applied, err := migrations.RunPostgresMigrations(ctx, pool, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "postgres: %d migration(s) applied\n", len(applied))

		if cfg.ClickhouseDSN != "" {
			conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN, logger)
			if err != nil {
				return err
			}
			conn.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "clickhouse: schema up to date")
		}
		return nil
	},
}
