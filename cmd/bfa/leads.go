package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Strategic session lead maintenance",
}

var leadsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull a session's leads from the lead source and score them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(a *app, sessionID string) (any, error) {
			return a.leads.SyncSession(cmd.Context(), sessionID)
		})
	},
}

var leadsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a session's leads from an .xlsx file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("file")
		return withApp(cmd, func(a *app, sessionID string) (any, error) {
			f, err := os.Open(path)
			if err != nil {
				return nil, eris.Wrapf(err, "open %s", path)
			}
			defer f.Close()
			return a.leads.ImportXLSX(cmd.Context(), sessionID, f)
		})
	},
}

var leadsRecalcCmd = &cobra.Command{
	Use:   "recalc",
	Short: "Rescore every lead of a session against its current criteria",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(a *app, sessionID string) (any, error) {
			return a.leads.RecalculateAll(cmd.Context(), sessionID)
		})
	},
}

func init() {
	leadsCmd.PersistentFlags().String("session", "", "strategic session id")
	_ = leadsCmd.MarkPersistentFlagRequired("session")

	leadsImportCmd.Flags().String("file", "", "path to the .xlsx file")
	_ = leadsImportCmd.MarkFlagRequired("file")

	leadsCmd.AddCommand(leadsSyncCmd, leadsImportCmd, leadsRecalcCmd)
	rootCmd.AddCommand(leadsCmd)
}

// withApp builds the services, runs fn for --session and prints its result
// as JSON on stdout.
func withApp(cmd *cobra.Command, fn func(a *app, sessionID string) (any, error)) error {
	sessionID, _ := cmd.Flags().GetString("session")

	a, err := buildApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := fn(a, sessionID)
	if err != nil {
		logger.Error("command failed", zap.String("command", cmd.CommandPath()), zap.Error(err))
		return err
	}
	return printJSON(cmd, res)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
