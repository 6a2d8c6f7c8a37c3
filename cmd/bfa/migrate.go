package main

import (
	"github.com/boddenberg/ops-bfa-go/internal/config"
	"github.com/boddenberg/ops-bfa-go/internal/infra/postgres"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending Postgres migrations",
	Long: `Apply the embedded SQL migrations to DATABASE_URL.

Only meaningful with STORE_DRIVER=postgres. On Supabase the same schema is
managed from the Supabase project.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.StoreDriver != config.DriverPostgres {
			return eris.Errorf("migrate requires STORE_DRIVER=%s, got %q", config.DriverPostgres, cfg.StoreDriver)
		}

		pool, err := postgres.Connect(cmd.Context(), cfg.DatabaseURL, 1)
		if err != nil {
			return err
		}
		defer pool.Close()

		return postgres.Migrate(cmd.Context(), pool, logger)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
