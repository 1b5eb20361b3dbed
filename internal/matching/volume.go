package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/observability"
	"binary-comp-engine/internal/placement"
	"binary-comp-engine/internal/storage"
)

// PostVolume adds amount to the participant's own leg and to every
// ancestor on the side the walk came up from. The walk stops at the root,
// at a missing parent, or at a root child without a leg tag. Returns the
// touched participants, nearest first. Career progress of every touched
// node is re-evaluated afterwards; those failures are logged, not returned.
func (e *Engine) PostVolume(ctx context.Context, participantID string, amount decimal.Decimal, leg domain.Leg) ([]string, error) {
	amount = domain.RoundAmount(amount)
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if !leg.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidLeg, leg)
	}

	var touched []string
	notify := func(err error, wait time.Duration) {
		observability.RecordConflictRetry("post_volume")
		e.log.Debug().Err(err).Dur("wait", wait).Str("participant_id", participantID).Msg("retrying volume post after conflict")
	}
	err := storage.InTxRetry(ctx, e.store, notify, func(tx storage.Tx) error {
		var err error
		touched, err = e.postVolumeTx(ctx, tx, participantID, amount, leg)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("post volume: %w", err)
	}

	observability.RecordVolume(amount)
	e.log.Info().
		Str("participant_id", participantID).
		Str("amount", amount.String()).
		Str("leg", leg.String()).
		Int("touched", len(touched)).
		Msg("volume posted")

	e.evaluateCareers(ctx, touched)
	return touched, nil
}

func (e *Engine) postVolumeTx(ctx context.Context, tx storage.Tx, participantID string, amount decimal.Decimal, leg domain.Leg) ([]string, error) {
	tree := tx.Tree()
	now := e.now().UnixMilli()

	node, err := tree.GetByID(ctx, participantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, participantID)
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}

	node.AddBusiness(leg, amount)
	node.UpdatedAt = now
	if err := tree.Update(ctx, node); err != nil {
		return nil, fmt.Errorf("update node %s: %w", participantID, err)
	}
	touched := []string{participantID}

	err = placement.WalkUp(ctx, tree, node, func(ancestor *domain.TreeNode, from domain.Leg) (bool, error) {
		if !from.IsValid() {
			return false, nil
		}
		ancestor.AddBusiness(from, amount)
		ancestor.UpdatedAt = now
		if err := tree.Update(ctx, ancestor); err != nil {
			return false, fmt.Errorf("update ancestor %s: %w", ancestor.ParticipantID, err)
		}
		touched = append(touched, ancestor.ParticipantID)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return touched, nil
}

func (e *Engine) evaluateCareers(ctx context.Context, ids []string) {
	if e.career == nil {
		return
	}
	for _, id := range ids {
		if _, err := e.career.Evaluate(ctx, id); err != nil {
			observability.RecordCareerFailure()
			e.log.Error().Err(err).Str("participant_id", id).Msg("career evaluation failed")
		}
	}
}
