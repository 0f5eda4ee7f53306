package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/scentdesk/fragrance-cli/internal/store"
)

var (
	usageUser       string
	usageDays       int
	usagePredict    bool
	usagePatterns   bool
	usageEfficiency bool
	usageExport     string
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Report AI usage, costs, and efficiency",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initResolver(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		switch {
		case usagePredict:
			pred, err := env.Ledger.PredictMonthlyCost(ctx, usageUser)
			if err != nil {
				return err
			}
			return printJSON(pred)

		case usagePatterns:
			patterns, err := env.Ledger.AnalyzeUsagePatterns(ctx, usageUser)
			if err != nil {
				return err
			}
			return printJSON(patterns)

		case usageEfficiency:
			report, err := env.Ledger.AnalyzeCostEfficiency(ctx, usageUser)
			if err != nil {
				return err
			}
			return printJSON(report)

		case usageExport != "":
			return exportUsageXLSX(cmd, env, usageExport)

		default:
			to := time.Now().UTC()
			from := to.AddDate(0, 0, -usageDays)
			summary, err := env.Ledger.Summary(ctx, usageUser, from, to)
			if err != nil {
				return err
			}
			return printJSON(summary)
		}
	},
}

// exportUsageXLSX writes the raw usage records for the window to a
// spreadsheet, one row per provider call.
func exportUsageXLSX(cmd *cobra.Command, env *resolverEnv, path string) error {
	ctx := cmd.Context()

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -usageDays)
	records, err := env.Store.ListUsage(ctx, store.UsageFilter{
		UserID: usageUser,
		Since:  from,
		Limit:  10000,
	})
	if err != nil {
		return err
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Usage")
	if err != nil {
		return eris.Wrap(err, "usage: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Created", "User", "Provider", "Model", "Operation", "Input Tokens", "Output Tokens", "Cost USD", "Latency ms", "Succeeded"} {
		header.AddCell().Value = h
	}

	for _, rec := range records {
		row := sheet.AddRow()
		row.AddCell().Value = rec.CreatedAt.UTC().Format(time.RFC3339)
		row.AddCell().Value = rec.UserID
		row.AddCell().Value = rec.Provider
		row.AddCell().Value = rec.Model
		row.AddCell().Value = rec.Operation
		row.AddCell().SetInt(rec.InputTokens)
		row.AddCell().SetInt(rec.OutputTokens)
		row.AddCell().SetFloat(rec.CostUSD)
		row.AddCell().SetInt64(rec.LatencyMs)
		row.AddCell().SetBool(rec.Succeeded)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "usage: save xlsx")
	}

	fmt.Printf("wrote %d records to %s\n", len(records), path)
	return nil
}

func init() {
	usageCmd.Flags().StringVar(&usageUser, "user", "", "restrict to one user id")
	usageCmd.Flags().IntVar(&usageDays, "days", 30, "report window in days")
	usageCmd.Flags().BoolVar(&usagePredict, "predict", false, "project month-end spend")
	usageCmd.Flags().BoolVar(&usagePatterns, "patterns", false, "analyze usage patterns")
	usageCmd.Flags().BoolVar(&usageEfficiency, "efficiency", false, "score cost efficiency")
	usageCmd.Flags().StringVar(&usageExport, "export", "", "write raw records to an xlsx file")
	rootCmd.AddCommand(usageCmd)
}
