package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"binary-comp-engine/internal/app"
)

// NewCmdReconcile recounts downline counters from the tree shape.
func NewCmdReconcile(rf *RootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recount downline counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rf.withApp(cmd.Context(), func(a *app.App, log zerolog.Logger) error {
				fixed, err := a.Placement.Reconcile(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reconciled %d nodes\n", fixed)
				return nil
			})
		},
	}
}
