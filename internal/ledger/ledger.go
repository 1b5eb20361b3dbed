// Package ledger implements per-participant, per-purpose wallets and the
// append-only entry log every balance change is written through.
//
// The ledger does not deduplicate by content. Callers reject duplicate
// requests (e.g. by external payment reference) before calling it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/observability"
	"binary-comp-engine/internal/storage"
)

// DefaultCurrency is used for lazily created wallets when none is configured.
const DefaultCurrency = "USD"

// Posting describes one balance change.
type Posting struct {
	ParticipantID string
	Purpose       domain.Purpose
	Amount        decimal.Decimal
	Reference     string            // optional external reference
	Tag           string            // reason, e.g. domain.TagMatchingBonus
	Meta          map[string]string // optional
}

// Options configures a Ledger.
type Options struct {
	Currency string
	Logger   zerolog.Logger
	Now      func() time.Time // defaults to time.Now
}

// Ledger runs wallet operations, each in its own transaction.
// Use Tx to run them inside a caller's transaction instead.
type Ledger struct {
	store    storage.Store
	currency string
	log      zerolog.Logger
	now      func() time.Time
}

// New creates a new Ledger.
func New(store storage.Store, opts Options) *Ledger {
	if opts.Currency == "" {
		opts.Currency = DefaultCurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{
		store:    store,
		currency: opts.Currency,
		log:      opts.Logger.With().Str("component", "ledger").Logger(),
		now:      opts.Now,
	}
}

// Tx returns a Writer bound to tx.
func (l *Ledger) Tx(tx storage.Tx) *Writer {
	return &Writer{l: l, tx: tx}
}

// Credit adds p.Amount to the wallet and appends an entry.
func (l *Ledger) Credit(ctx context.Context, p Posting) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := l.inTx(ctx, "credit", func(w *Writer) error {
		var err error
		entry, err = w.Credit(ctx, p)
		return err
	})
	return entry, err
}

// Debit removes p.Amount from the wallet and appends an entry.
// Fails with ErrInsufficientBalance if p.Amount exceeds balance - reserved.
func (l *Ledger) Debit(ctx context.Context, p Posting) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := l.inTx(ctx, "debit", func(w *Writer) error {
		var err error
		entry, err = w.Debit(ctx, p)
		return err
	})
	return entry, err
}

// Reserve earmarks amount of the free balance.
func (l *Ledger) Reserve(ctx context.Context, participantID string, purpose domain.Purpose, amount decimal.Decimal) (*domain.Wallet, error) {
	var wallet *domain.Wallet
	err := l.inTx(ctx, "reserve", func(w *Writer) error {
		var err error
		wallet, err = w.Reserve(ctx, participantID, purpose, amount)
		return err
	})
	return wallet, err
}

// Release returns amount of the reserved balance to the free balance.
func (l *Ledger) Release(ctx context.Context, participantID string, purpose domain.Purpose, amount decimal.Decimal) (*domain.Wallet, error) {
	var wallet *domain.Wallet
	err := l.inTx(ctx, "release", func(w *Writer) error {
		var err error
		wallet, err = w.Release(ctx, participantID, purpose, amount)
		return err
	})
	return wallet, err
}

func (l *Ledger) inTx(ctx context.Context, op string, fn func(w *Writer) error) error {
	notify := func(err error, wait time.Duration) {
		observability.RecordConflictRetry("ledger_" + op)
		l.log.Debug().Err(err).Dur("wait", wait).Str("op", op).Msg("retrying after conflict")
	}
	return storage.InTxRetry(ctx, l.store, notify, func(tx storage.Tx) error {
		return fn(l.Tx(tx))
	})
}

// Wallets returns every wallet of a participant ordered by purpose.
func (l *Ledger) Wallets(ctx context.Context, participantID string) ([]*domain.Wallet, error) {
	var wallets []*domain.Wallet
	err := l.store.View(ctx, func(tx storage.Tx) error {
		var err error
		wallets, err = tx.Wallets().GetByParticipant(ctx, participantID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return wallets, nil
}

// Wallet returns one wallet. A wallet never used reads as an empty wallet.
func (l *Ledger) Wallet(ctx context.Context, participantID string, purpose domain.Purpose) (*domain.Wallet, error) {
	if !purpose.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPurpose, purpose)
	}

	var wallet *domain.Wallet
	err := l.store.View(ctx, func(tx storage.Tx) error {
		w, err := tx.Wallets().Get(ctx, participantID, purpose)
		if errors.Is(err, storage.ErrNotFound) {
			wallet = domain.NewWallet(participantID, purpose, l.currency)
			return nil
		}
		wallet = w
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return wallet, nil
}

// Entries returns the entries of one wallet in creation order.
func (l *Ledger) Entries(ctx context.Context, participantID string, purpose domain.Purpose) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	err := l.store.View(ctx, func(tx storage.Tx) error {
		var err error
		entries, err = tx.Ledger().GetByWallet(ctx, participantID, purpose)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}
