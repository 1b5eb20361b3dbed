package memory

import (
	"context"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// ParticipantStore is an in-memory implementation of storage.ParticipantStore.
type ParticipantStore struct {
	tx *tx
}

// Insert adds a new participant. Returns ErrDuplicateKey if id or code exists.
func (s *ParticipantStore) Insert(_ context.Context, p *domain.Participant) error {
	if p == nil || p.ID == "" || p.Code == "" {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}

	st := s.tx.st
	if _, exists := st.participants[p.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := st.codes[p.Code]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	pCopy := *p
	st.participants[p.ID] = &pCopy
	st.codes[p.Code] = p.ID
	return nil
}

// GetByID retrieves a participant. Returns ErrNotFound if not exists.
func (s *ParticipantStore) GetByID(_ context.Context, id string) (*domain.Participant, error) {
	p, exists := s.tx.st.participants[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	pCopy := *p
	return &pCopy, nil
}

// GetByCode retrieves a participant by business code. Returns ErrNotFound if not exists.
func (s *ParticipantStore) GetByCode(ctx context.Context, code string) (*domain.Participant, error) {
	id, exists := s.tx.st.codes[code]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// UpdateStatus changes the lifecycle status. Returns ErrNotFound if not exists.
func (s *ParticipantStore) UpdateStatus(_ context.Context, id string, status domain.Status, updatedAt int64) error {
	if !status.IsValid() {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}

	p, exists := s.tx.st.participants[id]
	if !exists {
		return storage.ErrNotFound
	}
	pCopy := *p
	pCopy.Status = status
	pCopy.UpdatedAt = updatedAt
	s.tx.st.participants[id] = &pCopy
	return nil
}

// Verify interface compliance at compile time.
var _ storage.ParticipantStore = (*ParticipantStore)(nil)
