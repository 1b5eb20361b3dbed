package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"binary-comp-engine/internal/app"
	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// participantView is everything stored about one participant.
type participantView struct {
	Participant *domain.Participant    `json:"participant"`
	Node        *domain.TreeNode       `json:"node,omitempty"`
	Career      *domain.CareerProgress `json:"career,omitempty"`
	Wallets     []*domain.Wallet       `json:"wallets"`
	Investments []*domain.Investment   `json:"investments"`
	Archived    []*domain.LedgerEntry  `json:"archived,omitempty"`
}

// NewCmdParticipant prints a participant looked up by id or business code.
func NewCmdParticipant(rf *RootFlags) *cobra.Command {
	var (
		id       string
		code     string
		archived bool
	)
	cmd := &cobra.Command{
		Use:   "participant",
		Short: "Show a participant's node, wallets and investments",
		Long:  "Look a participant up by --id or --code and print its tree node, career progress, wallets and investments as JSON. With --archived the participant's entries in the ledger archive are included.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (id == "") == (code == "") {
				return errors.New("exactly one of --id or --code is required")
			}
			return rf.withApp(cmd.Context(), func(a *app.App, _ zerolog.Logger) error {
				var archive storage.LedgerArchiveStore
				if archived {
					if a.Archive == nil {
						return errors.New("--archived needs a ledger archive (CLICKHOUSE_DSN or STORAGE=memory)")
					}
					archive = a.Archive
				}
				view, err := lookupParticipant(cmd.Context(), a.Store, archive, id, code)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Participant id")
	cmd.Flags().StringVar(&code, "code", "", "Participant business code")
	cmd.Flags().BoolVar(&archived, "archived", false, "Include archived ledger entries")
	return cmd
}

// lookupParticipant reads a participant by id, or by code when id is empty.
// Archived entries are read only when archive is set.
func lookupParticipant(ctx context.Context, store storage.Store, archive storage.LedgerArchiveStore, id, code string) (*participantView, error) {
	view := &participantView{}
	err := store.View(ctx, func(tx storage.Tx) error {
		var err error
		if id != "" {
			view.Participant, err = tx.Participants().GetByID(ctx, id)
		} else {
			view.Participant, err = tx.Participants().GetByCode(ctx, code)
		}
		if err != nil {
			return fmt.Errorf("get participant: %w", err)
		}
		pid := view.Participant.ID

		view.Node, err = tx.Tree().GetByID(ctx, pid)
		if errors.Is(err, storage.ErrNotFound) {
			view.Node, err = nil, nil
		}
		if err != nil {
			return fmt.Errorf("get node: %w", err)
		}

		view.Career, err = tx.CareerProgress().Get(ctx, pid)
		if errors.Is(err, storage.ErrNotFound) {
			view.Career, err = nil, nil
		}
		if err != nil {
			return fmt.Errorf("get career progress: %w", err)
		}

		if view.Wallets, err = tx.Wallets().GetByParticipant(ctx, pid); err != nil {
			return fmt.Errorf("get wallets: %w", err)
		}
		if view.Investments, err = tx.Investments().GetByParticipant(ctx, pid); err != nil {
			return fmt.Errorf("get investments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if archive != nil {
		view.Archived, err = archive.GetByParticipant(ctx, view.Participant.ID)
		if err != nil {
			return nil, fmt.Errorf("get archived entries: %w", err)
		}
	}
	return view, nil
}
