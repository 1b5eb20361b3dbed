package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// LedgerArchiveStore is an in-memory implementation of storage.LedgerArchiveStore.
type LedgerArchiveStore struct {
	mu   sync.RWMutex
	data map[string]*domain.LedgerEntry // keyed by entry id
}

// NewLedgerArchiveStore creates a new in-memory ledger archive.
func NewLedgerArchiveStore() *LedgerArchiveStore {
	return &LedgerArchiveStore{
		data: make(map[string]*domain.LedgerEntry),
	}
}

// InsertBulk adds multiple entries. Fails entire batch on duplicate ID.
func (s *LedgerArchiveStore) InsertBulk(_ context.Context, entries []*domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := seen[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.ID] = struct{}{}
	}

	for _, e := range entries {
		s.data[e.ID] = e.Clone()
	}
	return nil
}

// GetByParticipant retrieves archived entries of a participant ordered by Seq ASC.
func (s *LedgerArchiveStore) GetByParticipant(_ context.Context, participantID string) ([]*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerEntry
	for _, e := range s.data {
		if e.ParticipantID == participantID {
			result = append(result, e.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

// SumByTag sums credited amounts with the given tag created within [start, end].
func (s *LedgerArchiveStore) SumByTag(_ context.Context, tag string, start, end int64) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, e := range s.data {
		if e.Tag == tag && e.Direction == domain.DirectionCredit && e.CreatedAt >= start && e.CreatedAt <= end {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

// Len returns the number of archived entries.
func (s *LedgerArchiveStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Verify interface compliance at compile time.
var _ storage.LedgerArchiveStore = (*LedgerArchiveStore)(nil)
