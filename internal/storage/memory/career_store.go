package memory

import (
	"context"
	"sort"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// CareerLevelStore is an in-memory implementation of storage.CareerLevelStore.
type CareerLevelStore struct {
	tx *tx
}

// Upsert inserts or replaces a level by ID.
func (s *CareerLevelStore) Upsert(_ context.Context, l *domain.CareerLevel) error {
	if l == nil || l.ID == "" || l.Name == "" {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}

	for id, other := range s.tx.st.levels {
		if id != l.ID && other.Name == l.Name {
			return storage.ErrDuplicateKey
		}
	}

	lCopy := *l
	s.tx.st.levels[l.ID] = &lCopy
	return nil
}

// GetActive retrieves active levels ordered by Rank ASC.
func (s *CareerLevelStore) GetActive(_ context.Context) ([]*domain.CareerLevel, error) {
	return s.collect(true), nil
}

// GetAll retrieves every level ordered by Rank ASC.
func (s *CareerLevelStore) GetAll(_ context.Context) ([]*domain.CareerLevel, error) {
	return s.collect(false), nil
}

func (s *CareerLevelStore) collect(activeOnly bool) []*domain.CareerLevel {
	var result []*domain.CareerLevel
	for _, l := range s.tx.st.levels {
		if activeOnly && !l.Active {
			continue
		}
		lCopy := *l
		result = append(result, &lCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Rank != result[j].Rank {
			return result[i].Rank < result[j].Rank
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// CareerProgressStore is an in-memory implementation of storage.CareerProgressStore.
type CareerProgressStore struct {
	tx *tx
}

// Get retrieves a participant's progress. Returns ErrNotFound if not exists.
func (s *CareerProgressStore) Get(_ context.Context, participantID string) (*domain.CareerProgress, error) {
	p, exists := s.tx.st.progress[participantID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// Insert adds a new progress record. Returns ErrDuplicateKey if exists.
func (s *CareerProgressStore) Insert(_ context.Context, p *domain.CareerProgress) error {
	if p == nil || p.ParticipantID == "" {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}
	if _, exists := s.tx.st.progress[p.ParticipantID]; exists {
		return storage.ErrDuplicateKey
	}

	p.Version = 0
	s.tx.st.progress[p.ParticipantID] = p.Clone()
	return nil
}

// Update writes p if the stored version equals p.Version, then increments p.Version.
func (s *CareerProgressStore) Update(_ context.Context, p *domain.CareerProgress) error {
	if p == nil {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}

	current, exists := s.tx.st.progress[p.ParticipantID]
	if !exists {
		return storage.ErrNotFound
	}
	if current.Version != p.Version {
		return storage.ErrConflict
	}

	p.Version++
	s.tx.st.progress[p.ParticipantID] = p.Clone()
	return nil
}

// Verify interface compliance at compile time.
var (
	_ storage.CareerLevelStore    = (*CareerLevelStore)(nil)
	_ storage.CareerProgressStore = (*CareerProgressStore)(nil)
)
