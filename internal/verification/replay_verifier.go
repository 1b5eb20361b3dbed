package verification

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// LedgerVerifier replays wallet ledgers.
type LedgerVerifier struct {
	store storage.Store
	log   zerolog.Logger
}

// NewLedgerVerifier creates a new LedgerVerifier.
func NewLedgerVerifier(store storage.Store, log zerolog.Logger) *LedgerVerifier {
	return &LedgerVerifier{
		store: store,
		log:   log.With().Str("component", "ledger_verifier").Logger(),
	}
}

// VerifyWallet replays the entries of one wallet.
func (v *LedgerVerifier) VerifyWallet(ctx context.Context, participantID string, purpose domain.Purpose) ([]Divergence, error) {
	var divs []Divergence
	err := v.store.View(ctx, func(tx storage.Tx) error {
		w, err := tx.Wallets().Get(ctx, participantID, purpose)
		if err != nil {
			return fmt.Errorf("load wallet %s/%s: %w", participantID, purpose, err)
		}
		divs, err = v.verify(ctx, tx, w)
		return err
	})
	return divs, err
}

// VerifyAll replays every wallet from one snapshot.
func (v *LedgerVerifier) VerifyAll(ctx context.Context) (*Report, error) {
	report := &Report{}
	err := v.store.View(ctx, func(tx storage.Tx) error {
		wallets, err := tx.Wallets().GetAll(ctx)
		if err != nil {
			return fmt.Errorf("load wallets: %w", err)
		}
		sort.Slice(wallets, func(i, j int) bool {
			if wallets[i].ParticipantID != wallets[j].ParticipantID {
				return wallets[i].ParticipantID < wallets[j].ParticipantID
			}
			return wallets[i].Purpose < wallets[j].Purpose
		})

		for _, w := range wallets {
			divs, err := v.verify(ctx, tx, w)
			if err != nil {
				return err
			}
			report.add(divs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := v.log.Info()
	if !report.OK() {
		ev = v.log.Warn()
	}
	ev.Int("wallets", report.Checked).
		Int("divergent", report.Divergent).
		Msg("ledger verification completed")
	return report, nil
}

func (v *LedgerVerifier) verify(ctx context.Context, tx storage.Tx, w *domain.Wallet) ([]Divergence, error) {
	entries, err := tx.Ledger().GetByWallet(ctx, w.ParticipantID, w.Purpose)
	if err != nil {
		return nil, fmt.Errorf("load entries %s/%s: %w", w.ParticipantID, w.Purpose, err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Seq < entries[j].Seq
	})
	return CheckWallet(w, entries), nil
}
