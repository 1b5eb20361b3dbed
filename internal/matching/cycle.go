package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/events"
	"binary-comp-engine/internal/idhash"
	"binary-comp-engine/internal/ledger"
	"binary-comp-engine/internal/observability"
	"binary-comp-engine/internal/storage"
)

// Payout is the applied outcome of a matching cycle on one node.
type Payout struct {
	ParticipantID string
	CycleID       string
	Matched       decimal.Decimal
	Payable       decimal.Decimal
	Bonus         decimal.Decimal
	LeftCarry     decimal.Decimal
	RightCarry    decimal.Decimal
	EarningCapped bool
	Reference     string
}

// RunMatchingCycle matches the node's two legs and credits the bonus to the
// matching_bonus wallet. The node update and the ledger entry commit
// together. Returns nil when the node had nothing to match.
func (e *Engine) RunMatchingCycle(ctx context.Context, participantID string, terms PackageTerms, cycleID string) (*Payout, error) {
	if terms.BinaryPct.IsNegative() || terms.CapAmount.IsNegative() {
		return nil, fmt.Errorf("%w: binary pct %s, cap %s", domain.ErrInvalidAmount, terms.BinaryPct, terms.CapAmount)
	}

	var payout *Payout
	notify := func(err error, wait time.Duration) {
		observability.RecordConflictRetry("matching_cycle")
		e.log.Debug().Err(err).Dur("wait", wait).Str("participant_id", participantID).Msg("retrying matching after conflict")
	}
	err := storage.InTxRetry(ctx, e.store, notify, func(tx storage.Tx) error {
		var err error
		payout, err = e.runCycleTx(ctx, tx, participantID, terms, cycleID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("matching cycle %s: %w", participantID, err)
	}
	if payout == nil {
		return nil, nil
	}

	if payout.Bonus.IsPositive() {
		observability.RecordMatchingPayout(payout.Bonus)
		e.publish(ctx, payout)
	}
	e.log.Info().
		Str("participant_id", participantID).
		Str("cycle_id", cycleID).
		Str("matched", payout.Matched.String()).
		Str("bonus", payout.Bonus.String()).
		Str("left_carry", payout.LeftCarry.String()).
		Str("right_carry", payout.RightCarry.String()).
		Bool("earning_capped", payout.EarningCapped).
		Msg("matching cycle applied")
	return payout, nil
}

func (e *Engine) runCycleTx(ctx context.Context, tx storage.Tx, participantID string, terms PackageTerms, cycleID string) (*Payout, error) {
	node, err := tx.Tree().GetByID(ctx, participantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, participantID)
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}

	r := ComputeCycle(node, terms)
	if !r.Changed() {
		return nil, nil
	}

	r.Apply(node)
	node.UpdatedAt = e.now().UnixMilli()
	if err := tx.Tree().Update(ctx, node); err != nil {
		return nil, fmt.Errorf("update node: %w", err)
	}

	payout := &Payout{
		ParticipantID: participantID,
		CycleID:       cycleID,
		Matched:       r.Matched,
		Payable:       r.Payable,
		Bonus:         r.Bonus,
		LeftCarry:     r.LeftCarry,
		RightCarry:    r.RightCarry,
		EarningCapped: r.EarningCapped,
		Reference:     idhash.MatchingReference(participantID, cycleID),
	}

	if r.Bonus.IsPositive() {
		_, err := e.ledger.Tx(tx).Credit(ctx, ledger.Posting{
			ParticipantID: participantID,
			Purpose:       domain.PurposeMatchingBonus,
			Amount:        r.Bonus,
			Reference:     payout.Reference,
			Tag:           domain.TagMatchingBonus,
			Meta: map[string]string{
				"cycle":   cycleID,
				"matched": r.Matched.String(),
				"payable": r.Payable.String(),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("credit matching bonus: %w", err)
		}
	}
	return payout, nil
}

func (e *Engine) publish(ctx context.Context, p *Payout) {
	err := e.events.Publish(ctx, events.Event{
		Type:          events.TypeMatchingPaid,
		ParticipantID: p.ParticipantID,
		Fields: map[string]string{
			"cycle":   p.CycleID,
			"matched": p.Matched.String(),
			"bonus":   p.Bonus.String(),
		},
		OccurredAt: e.now().UnixMilli(),
	})
	if err != nil {
		e.log.Warn().Err(err).Str("participant_id", p.ParticipantID).Msg("publish matching event failed")
	}
}
