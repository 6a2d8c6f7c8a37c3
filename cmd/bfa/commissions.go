package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var commissionsCmd = &cobra.Command{
	Use:   "commissions",
	Short: "Seller commission maintenance",
}

var commissionsRegenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Assign a seller to a sale and rebuild its commissions",
	Long: `Assign a seller to a sale and replace the commission rows of all of its
installments. Running it twice with the same arguments yields the same rows.

Examples:
  bfa commissions regenerate --sale 6f1c... --seller 9a2b...
  bfa commissions regenerate --sale 6f1c... --seller 9a2b... --percent 12.5`,
	RunE: runCommissionsRegenerate,
}

var commissionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a seller's monthly statement to an .xlsx file",
	RunE:  runCommissionsExport,
}

func init() {
	f := commissionsRegenerateCmd.Flags()
	f.String("sale", "", "sale id")
	f.String("seller", "", "seller user id")
	f.Float64("percent", 0, "commission percent override (0 keeps the sale/default percent)")
	_ = commissionsRegenerateCmd.MarkFlagRequired("sale")
	_ = commissionsRegenerateCmd.MarkFlagRequired("seller")

	e := commissionsExportCmd.Flags()
	e.String("seller", "", "seller user id")
	e.String("month", "", "competence month, YYYY-MM")
	e.String("output", "", "output path (default: statement-<seller>-<month>.xlsx)")
	_ = commissionsExportCmd.MarkFlagRequired("seller")
	_ = commissionsExportCmd.MarkFlagRequired("month")

	commissionsCmd.AddCommand(commissionsRegenerateCmd, commissionsExportCmd)
	rootCmd.AddCommand(commissionsCmd)
}

func runCommissionsRegenerate(cmd *cobra.Command, _ []string) error {
	saleID, _ := cmd.Flags().GetString("sale")
	sellerID, _ := cmd.Flags().GetString("seller")

	var override *float64
	if cmd.Flags().Changed("percent") {
		p, _ := cmd.Flags().GetFloat64("percent")
		override = &p
	}

	a, err := buildApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := a.commissions.AssignSeller(cmd.Context(), saleID, sellerID, override)
	if err != nil {
		return err
	}
	logger.Info("commissions regenerated",
		zap.String("sale_id", saleID),
		zap.String("seller_id", sellerID),
		zap.Int("rows", len(rows)),
	)
	return printJSON(cmd, rows)
}

func runCommissionsExport(cmd *cobra.Command, _ []string) error {
	sellerID, _ := cmd.Flags().GetString("seller")
	rawMonth, _ := cmd.Flags().GetString("month")
	output, _ := cmd.Flags().GetString("output")

	month, err := time.Parse("2006-01", rawMonth)
	if err != nil {
		return eris.Errorf("invalid --month %q, expected YYYY-MM", rawMonth)
	}
	if output == "" {
		output = "statement-" + sellerID + "-" + rawMonth + ".xlsx"
	}

	a, err := buildApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Create(output)
	if err != nil {
		return eris.Wrapf(err, "create %s", output)
	}
	defer f.Close()

	if err := a.commissions.ExportStatement(cmd.Context(), f, sellerID, month); err != nil {
		return err
	}
	logger.Info("statement exported", zap.String("seller_id", sellerID), zap.String("path", output))
	return nil
}
