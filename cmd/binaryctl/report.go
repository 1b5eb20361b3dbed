package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"binary-comp-engine/internal/app"
	"binary-comp-engine/internal/orchestrator"
	"binary-comp-engine/internal/reporting"
)

// NewCmdReport renders the ledger activity of one day without running matching.
func NewCmdReport(rf *RootFlags) *cobra.Command {
	var (
		day    string
		format string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the ledger report of a day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := time.Parse(orchestrator.CycleIDLayout, day)
			if err != nil {
				return fmt.Errorf("invalid --day %q: %w", day, err)
			}
			if format != "md" && format != "csv" {
				return fmt.Errorf("unknown --format %q (want md or csv)", format)
			}

			return rf.withApp(cmd.Context(), func(a *app.App, log zerolog.Logger) error {
				report, err := reporting.NewGenerator(a.Store).Generate(cmd.Context(), reporting.Input{
					CycleID:     day,
					WindowStart: start.UnixMilli(),
					WindowEnd:   start.Add(24 * time.Hour).UnixMilli(),
					Export:      reporting.ExportSummary{Skipped: true},
				})
				if err != nil {
					return err
				}
				if format == "csv" {
					fmt.Fprint(cmd.OutOrStdout(), reporting.RenderCSV(report))
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), reporting.RenderMarkdown(report))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&day, "day", orchestrator.CycleID(time.Now()), "UTC day to report (YYYY-MM-DD)")
	cmd.Flags().StringVar(&format, "format", "md", "Output format: md or csv")
	return cmd
}
