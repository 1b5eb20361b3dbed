package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"binary-comp-engine/internal/app"
	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// levelSpec is one career level in a levels file.
type levelSpec struct {
	ID        string          `json:"id"`
	Rank      int             `json:"rank"`
	Name      string          `json:"name"`
	Threshold decimal.Decimal `json:"threshold"`
	Reward    decimal.Decimal `json:"reward"`
	Active    *bool           `json:"active,omitempty"` // defaults to true
}

// NewCmdSeedLevels upserts career levels from a JSON file.
func NewCmdSeedLevels(rf *RootFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-levels",
		Short: "Upsert career levels from a JSON file",
		Example: `  binaryctl seed-levels --file levels.json

  [{"id": "bronze", "rank": 1, "name": "Bronze", "threshold": "1000", "reward": "50"}]`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			levels, err := loadLevels(file)
			if err != nil {
				return err
			}
			return rf.withApp(cmd.Context(), func(a *app.App, log zerolog.Logger) error {
				if err := upsertLevels(cmd.Context(), a.Store, levels); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "upserted %d career levels\n", len(levels))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path to the levels JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// loadLevels reads and validates a levels file.
func loadLevels(path string) ([]*domain.CareerLevel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read levels: %w", err)
	}
	var specs []levelSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse levels: %w", err)
	}

	seen := make(map[string]bool, len(specs))
	levels := make([]*domain.CareerLevel, 0, len(specs))
	for _, s := range specs {
		if s.ID == "" {
			return nil, errors.New("level without id")
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate level id %s", s.ID)
		}
		seen[s.ID] = true
		if !s.Threshold.IsPositive() || s.Reward.IsNegative() {
			return nil, fmt.Errorf("level %s: %w", s.ID, domain.ErrInvalidAmount)
		}
		active := true
		if s.Active != nil {
			active = *s.Active
		}
		levels = append(levels, &domain.CareerLevel{
			ID:        s.ID,
			Rank:      s.Rank,
			Name:      s.Name,
			Threshold: domain.RoundAmount(s.Threshold),
			Reward:    domain.RoundAmount(s.Reward),
			Active:    active,
		})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Rank < levels[j].Rank })
	return levels, nil
}

func upsertLevels(ctx context.Context, store storage.Store, levels []*domain.CareerLevel) error {
	return store.InTx(ctx, func(tx storage.Tx) error {
		for _, l := range levels {
			if err := tx.CareerLevels().Upsert(ctx, l); err != nil {
				return fmt.Errorf("upsert level %s: %w", l.ID, err)
			}
		}
		return nil
	})
}
