package memory

import (
	"context"
	"sort"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	tx *tx
}

// Insert adds a new wallet. Returns ErrDuplicateKey if (participant, purpose) exists.
func (s *WalletStore) Insert(_ context.Context, w *domain.Wallet) error {
	if w == nil || w.ParticipantID == "" || !w.Purpose.IsValid() {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}

	key := walletKey{w.ParticipantID, w.Purpose}
	if _, exists := s.tx.st.wallets[key]; exists {
		return storage.ErrDuplicateKey
	}

	w.Version = 0
	wCopy := *w
	s.tx.st.wallets[key] = &wCopy
	return nil
}

// Get retrieves a wallet. Returns ErrNotFound if not exists.
func (s *WalletStore) Get(_ context.Context, participantID string, purpose domain.Purpose) (*domain.Wallet, error) {
	w, exists := s.tx.st.wallets[walletKey{participantID, purpose}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	wCopy := *w
	return &wCopy, nil
}

// Update writes w if the stored version equals w.Version, then increments w.Version.
func (s *WalletStore) Update(_ context.Context, w *domain.Wallet) error {
	if w == nil {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}

	key := walletKey{w.ParticipantID, w.Purpose}
	current, exists := s.tx.st.wallets[key]
	if !exists {
		return storage.ErrNotFound
	}
	if current.Version != w.Version {
		return storage.ErrConflict
	}

	w.Version++
	wCopy := *w
	s.tx.st.wallets[key] = &wCopy
	return nil
}

// GetByParticipant retrieves all wallets of a participant ordered by purpose.
func (s *WalletStore) GetByParticipant(_ context.Context, participantID string) ([]*domain.Wallet, error) {
	var result []*domain.Wallet
	for key, w := range s.tx.st.wallets {
		if key.participantID == participantID {
			wCopy := *w
			result = append(result, &wCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Purpose < result[j].Purpose
	})
	return result, nil
}

// GetAll retrieves every wallet ordered by participant and purpose.
func (s *WalletStore) GetAll(_ context.Context) ([]*domain.Wallet, error) {
	result := make([]*domain.Wallet, 0, len(s.tx.st.wallets))
	for _, w := range s.tx.st.wallets {
		wCopy := *w
		result = append(result, &wCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ParticipantID != result[j].ParticipantID {
			return result[i].ParticipantID < result[j].ParticipantID
		}
		return result[i].Purpose < result[j].Purpose
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.WalletStore = (*WalletStore)(nil)
