package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"binary-comp-engine/internal/app"
)

// NewCmdCycle runs one daily cycle.
func NewCmdCycle(rf *RootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run the daily cycle once",
		Long:  "Run matching for every node with unmatched volume, re-evaluate career tiers of every node with volume, export new ledger entries to the archive and write the cycle report. Safe to re-run on the same day.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rf.withApp(cmd.Context(), func(a *app.App, log zerolog.Logger) error {
				result, err := a.Orchestrator.RunDailyCycle(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "cycle %s: %d candidates, %d paid, total bonus %s\n",
					result.CycleID, result.Batch.Candidates, result.Batch.Paid, result.Batch.TotalBonus.String())
				fmt.Fprintf(out, "career: %d evaluated, %d failed\n", result.Career.Evaluated, result.Career.Failed)
				fmt.Fprintf(out, "exported %d ledger entries\n", result.Export.Entries)
				for _, f := range result.ReportFiles {
					fmt.Fprintf(out, "report: %s\n", f)
				}
				for _, e := range result.Errors {
					fmt.Fprintf(out, "error: %s\n", e)
				}
				if len(result.Errors) > 0 {
					return fmt.Errorf("cycle finished with %d errors", len(result.Errors))
				}
				return nil
			})
		},
	}
}
