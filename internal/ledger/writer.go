package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/observability"
	"binary-comp-engine/internal/storage"
)

// Writer applies wallet operations inside one transaction. Every balance
// change and its entry are written together or not at all.
type Writer struct {
	l  *Ledger
	tx storage.Tx
}

// Credit adds p.Amount to the wallet and appends an entry.
func (w *Writer) Credit(ctx context.Context, p Posting) (*domain.LedgerEntry, error) {
	return w.post(ctx, p, domain.DirectionCredit)
}

// Debit removes p.Amount from the wallet and appends an entry.
func (w *Writer) Debit(ctx context.Context, p Posting) (*domain.LedgerEntry, error) {
	return w.post(ctx, p, domain.DirectionDebit)
}

func (w *Writer) post(ctx context.Context, p Posting, dir domain.Direction) (*domain.LedgerEntry, error) {
	amount, err := checkInput(p.Purpose, p.Amount)
	if err != nil {
		return nil, err
	}

	wallet, err := w.Wallet(ctx, p.ParticipantID, p.Purpose)
	if err != nil {
		return nil, err
	}

	before := wallet.Balance
	switch dir {
	case domain.DirectionCredit:
		wallet.Balance = before.Add(amount)
	case domain.DirectionDebit:
		if amount.GreaterThan(wallet.Available()) {
			observability.RecordLedgerRejected("debit", "insufficient_balance")
			return nil, fmt.Errorf("%w: debit %s, available %s", domain.ErrInsufficientBalance, amount, wallet.Available())
		}
		wallet.Balance = before.Sub(amount)
	}

	now := w.l.now().UnixMilli()
	wallet.UpdatedAt = now
	if err := w.tx.Wallets().Update(ctx, wallet); err != nil {
		return nil, fmt.Errorf("update wallet: %w", err)
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.NewString(),
		ParticipantID: p.ParticipantID,
		Purpose:       p.Purpose,
		Direction:     dir,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  wallet.Balance,
		Status:        domain.EntryStatusCompleted,
		Reference:     p.Reference,
		Tag:           p.Tag,
		Meta:          p.Meta,
		CreatedAt:     now,
	}
	if err := w.tx.Ledger().Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append entry: %w", err)
	}

	observability.RecordLedgerEntry(string(p.Purpose), string(dir))
	w.l.log.Debug().
		Str("participant_id", p.ParticipantID).
		Str("purpose", string(p.Purpose)).
		Str("direction", string(dir)).
		Str("amount", amount.String()).
		Str("tag", p.Tag).
		Msg("ledger entry")
	return entry, nil
}

// Reserve earmarks amount of the free balance. No entry is written.
func (w *Writer) Reserve(ctx context.Context, participantID string, purpose domain.Purpose, amount decimal.Decimal) (*domain.Wallet, error) {
	amount, err := checkInput(purpose, amount)
	if err != nil {
		return nil, err
	}

	wallet, err := w.Wallet(ctx, participantID, purpose)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(wallet.Available()) {
		observability.RecordLedgerRejected("reserve", "insufficient_balance")
		return nil, fmt.Errorf("%w: reserve %s, available %s", domain.ErrInsufficientBalance, amount, wallet.Available())
	}

	wallet.Reserved = wallet.Reserved.Add(amount)
	return wallet, w.save(ctx, wallet)
}

// Release returns amount of the reserved balance to the free balance.
func (w *Writer) Release(ctx context.Context, participantID string, purpose domain.Purpose, amount decimal.Decimal) (*domain.Wallet, error) {
	amount, err := checkInput(purpose, amount)
	if err != nil {
		return nil, err
	}

	wallet, err := w.Wallet(ctx, participantID, purpose)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(wallet.Reserved) {
		observability.RecordLedgerRejected("release", "insufficient_reserve")
		return nil, fmt.Errorf("%w: release %s, reserved %s", domain.ErrInsufficientReserve, amount, wallet.Reserved)
	}

	wallet.Reserved = wallet.Reserved.Sub(amount)
	return wallet, w.save(ctx, wallet)
}

func (w *Writer) save(ctx context.Context, wallet *domain.Wallet) error {
	wallet.UpdatedAt = w.l.now().UnixMilli()
	if err := w.tx.Wallets().Update(ctx, wallet); err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	return nil
}

// Wallet loads a wallet, creating it on first use.
func (w *Writer) Wallet(ctx context.Context, participantID string, purpose domain.Purpose) (*domain.Wallet, error) {
	wallet, err := w.tx.Wallets().Get(ctx, participantID, purpose)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	now := w.l.now().UnixMilli()
	wallet = domain.NewWallet(participantID, purpose, w.l.currency)
	wallet.CreatedAt = now
	wallet.UpdatedAt = now
	if err := w.tx.Wallets().Insert(ctx, wallet); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Created by a concurrent transaction.
			return nil, fmt.Errorf("create wallet: %w", storage.ErrConflict)
		}
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return wallet, nil
}

// checkInput validates purpose and returns amount rounded to the stored scale.
func checkInput(purpose domain.Purpose, amount decimal.Decimal) (decimal.Decimal, error) {
	if !purpose.IsValid() {
		return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrInvalidPurpose, purpose)
	}
	amount = domain.RoundAmount(amount)
	if err := domain.ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}
