package investment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/events"
	"binary-comp-engine/internal/ledger"
	"binary-comp-engine/internal/observability"
	"binary-comp-engine/internal/storage"
)

// RequestWithdrawal reserves amount in the wallet and records a pending
// withdrawal. Funds stay in the balance until the request is decided.
func (s *Service) RequestWithdrawal(ctx context.Context, participantID string, purpose domain.Purpose, amount decimal.Decimal) (*domain.Withdrawal, error) {
	amount = domain.RoundAmount(amount)
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	var w *domain.Withdrawal
	err := storage.InTxRetry(ctx, s.store, s.retryLog("request_withdrawal"), func(tx storage.Tx) error {
		if _, err := tx.Participants().GetByID(ctx, participantID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, participantID)
			}
			return fmt.Errorf("get participant: %w", err)
		}

		if _, err := s.ledger.Tx(tx).Reserve(ctx, participantID, purpose, amount); err != nil {
			return err
		}

		w = &domain.Withdrawal{
			ID:            uuid.NewString(),
			ParticipantID: participantID,
			Purpose:       purpose,
			Amount:        amount,
			Status:        domain.WithdrawalPending,
			CreatedAt:     s.now().UnixMilli(),
		}
		if err := tx.Withdrawals().Insert(ctx, w); err != nil {
			return fmt.Errorf("insert withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("request withdrawal: %w", err)
	}

	s.publish(ctx, events.TypeWithdrawalRequest, participantID, withdrawalFields(w))
	s.log.Info().
		Str("participant_id", participantID).
		Str("withdrawal_id", w.ID).
		Str("purpose", string(purpose)).
		Str("amount", amount.String()).
		Msg("withdrawal requested")
	return w, nil
}

// ApproveWithdrawal releases the reservation and debits the wallet.
func (s *Service) ApproveWithdrawal(ctx context.Context, withdrawalID string) (*domain.Withdrawal, error) {
	return s.decide(ctx, withdrawalID, domain.WithdrawalApproved)
}

// RejectWithdrawal releases the reservation without moving funds.
func (s *Service) RejectWithdrawal(ctx context.Context, withdrawalID string) (*domain.Withdrawal, error) {
	return s.decide(ctx, withdrawalID, domain.WithdrawalRejected)
}

func (s *Service) decide(ctx context.Context, withdrawalID string, status domain.WithdrawalStatus) (*domain.Withdrawal, error) {
	var w *domain.Withdrawal
	err := storage.InTxRetry(ctx, s.store, s.retryLog("decide_withdrawal"), func(tx storage.Tx) error {
		var err error
		w, err = tx.Withdrawals().GetByID(ctx, withdrawalID)
		if err != nil {
			return fmt.Errorf("get withdrawal %s: %w", withdrawalID, err)
		}
		if w.Status != domain.WithdrawalPending {
			return fmt.Errorf("%w: %s is %s", domain.ErrWithdrawalState, withdrawalID, w.Status)
		}

		lw := s.ledger.Tx(tx)
		if _, err := lw.Release(ctx, w.ParticipantID, w.Purpose, w.Amount); err != nil {
			return err
		}
		if status == domain.WithdrawalApproved {
			_, err := lw.Debit(ctx, ledger.Posting{
				ParticipantID: w.ParticipantID,
				Purpose:       w.Purpose,
				Amount:        w.Amount,
				Reference:     w.ID,
				Tag:           domain.TagWithdrawal,
			})
			if err != nil {
				return err
			}
		}

		decidedAt := s.now().UnixMilli()
		if err := tx.Withdrawals().UpdateStatus(ctx, withdrawalID, status, decidedAt); err != nil {
			return fmt.Errorf("update withdrawal: %w", err)
		}
		w.Status = status
		w.DecidedAt = decidedAt
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s withdrawal: %w", status, err)
	}

	t := events.TypeWithdrawalApproved
	if status == domain.WithdrawalRejected {
		t = events.TypeWithdrawalRejected
	}
	s.publish(ctx, t, w.ParticipantID, withdrawalFields(w))
	s.log.Info().
		Str("withdrawal_id", w.ID).
		Str("participant_id", w.ParticipantID).
		Str("status", string(status)).
		Msg("withdrawal decided")
	return w, nil
}

func (s *Service) retryLog(op string) storage.OnRetry {
	return func(err error, wait time.Duration) {
		observability.RecordConflictRetry(op)
		s.log.Debug().Err(err).Dur("wait", wait).Str("op", op).Msg("retrying after conflict")
	}
}

func withdrawalFields(w *domain.Withdrawal) map[string]string {
	return map[string]string{
		"withdrawal_id": w.ID,
		"purpose":       string(w.Purpose),
		"amount":        w.Amount.String(),
	}
}
