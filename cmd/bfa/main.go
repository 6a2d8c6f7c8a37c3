package main

import (
	"os"

	"github.com/boddenberg/ops-bfa-go/internal/config"
	"github.com/boddenberg/ops-bfa-go/internal/infra/observability"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bfa",
	Short: "Commercial operations backend",
	Long: `Backend for the commercial operations dashboard: funnel revenue
attribution, seller and SDR commissions, and strategic lead qualification.

Running without a subcommand starts the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c
		logger = observability.NewLogger(cfg.LogLevel, cfg.ServiceName)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
