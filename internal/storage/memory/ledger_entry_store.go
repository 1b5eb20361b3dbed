package memory

import (
	"context"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// LedgerEntryStore is an in-memory implementation of storage.LedgerEntryStore.
type LedgerEntryStore struct {
	tx *tx
}

// Append stores e and assigns e.Seq. Returns ErrDuplicateKey if e.ID exists.
func (s *LedgerEntryStore) Append(_ context.Context, e *domain.LedgerEntry) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}

	st := s.tx.st
	if _, exists := st.entryIDs[e.ID]; exists {
		return storage.ErrDuplicateKey
	}

	st.seq++
	e.Seq = st.seq
	st.entries = append(st.entries, e.Clone())
	st.entryIDs[e.ID] = struct{}{}
	return nil
}

// GetByWallet retrieves the entries of one wallet ordered by Seq ASC.
func (s *LedgerEntryStore) GetByWallet(_ context.Context, participantID string, purpose domain.Purpose) ([]*domain.LedgerEntry, error) {
	var result []*domain.LedgerEntry
	for _, e := range s.tx.st.entries {
		if e.ParticipantID == participantID && e.Purpose == purpose {
			result = append(result, e.Clone())
		}
	}
	return result, nil
}

// GetByParticipant retrieves all entries of a participant ordered by Seq ASC.
func (s *LedgerEntryStore) GetByParticipant(_ context.Context, participantID string) ([]*domain.LedgerEntry, error) {
	var result []*domain.LedgerEntry
	for _, e := range s.tx.st.entries {
		if e.ParticipantID == participantID {
			result = append(result, e.Clone())
		}
	}
	return result, nil
}

// GetAfterSeq retrieves up to limit entries with Seq > seq ordered by Seq ASC.
func (s *LedgerEntryStore) GetAfterSeq(_ context.Context, seq int64, limit int) ([]*domain.LedgerEntry, error) {
	var result []*domain.LedgerEntry
	for _, e := range s.tx.st.entries {
		if e.Seq <= seq {
			continue
		}
		result = append(result, e.Clone())
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.LedgerEntryStore = (*LedgerEntryStore)(nil)
