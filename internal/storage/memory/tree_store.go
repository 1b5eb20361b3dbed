package memory

import (
	"context"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// TreeStore is an in-memory implementation of storage.TreeStore.
type TreeStore struct {
	tx *tx
}

// Insert adds a new node with Version 0. Returns ErrDuplicateKey if the participant is placed.
func (s *TreeStore) Insert(_ context.Context, n *domain.TreeNode) error {
	if n == nil || n.ParticipantID == "" {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}

	st := s.tx.st
	if _, exists := st.nodes[n.ParticipantID]; exists {
		return storage.ErrDuplicateKey
	}
	if n.IsRoot() && st.rootID != "" {
		return storage.ErrDuplicateKey
	}

	n.Version = 0
	st.nodes[n.ParticipantID] = n.Clone()
	st.nodeOrder = append(st.nodeOrder, n.ParticipantID)
	if n.IsRoot() {
		st.rootID = n.ParticipantID
	}
	return nil
}

// GetByID retrieves the node of a participant. Returns ErrNotFound if not exists.
func (s *TreeStore) GetByID(_ context.Context, participantID string) (*domain.TreeNode, error) {
	n, exists := s.tx.st.nodes[participantID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return n.Clone(), nil
}

// GetRoot retrieves the root node. Returns ErrNotFound if there is none.
func (s *TreeStore) GetRoot(ctx context.Context) (*domain.TreeNode, error) {
	if s.tx.st.rootID == "" {
		return nil, storage.ErrNotFound
	}
	return s.GetByID(ctx, s.tx.st.rootID)
}

// Update writes n if the stored version equals n.Version, then increments n.Version.
func (s *TreeStore) Update(_ context.Context, n *domain.TreeNode) error {
	if n == nil {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}

	current, exists := s.tx.st.nodes[n.ParticipantID]
	if !exists {
		return storage.ErrNotFound
	}
	if current.Version != n.Version {
		return storage.ErrConflict
	}

	n.Version++
	s.tx.st.nodes[n.ParticipantID] = n.Clone()
	return nil
}

// GetAll retrieves every node ordered by creation.
func (s *TreeStore) GetAll(_ context.Context) ([]*domain.TreeNode, error) {
	result := make([]*domain.TreeNode, 0, len(s.tx.st.nodeOrder))
	for _, id := range s.tx.st.nodeOrder {
		result = append(result, s.tx.st.nodes[id].Clone())
	}
	return result, nil
}

// GetWithUnmatched retrieves nodes with business not yet consumed by a cycle.
func (s *TreeStore) GetWithUnmatched(_ context.Context) ([]*domain.TreeNode, error) {
	var result []*domain.TreeNode
	for _, id := range s.tx.st.nodeOrder {
		n := s.tx.st.nodes[id]
		if n.HasUnmatched() {
			result = append(result, n.Clone())
		}
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.TreeStore = (*TreeStore)(nil)
