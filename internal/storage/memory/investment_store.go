package memory

import (
	"context"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// InvestmentStore is an in-memory implementation of storage.InvestmentStore.
type InvestmentStore struct {
	tx *tx
}

// Insert adds a new investment. Returns ErrDuplicateKey if id or payment ref exists.
func (s *InvestmentStore) Insert(_ context.Context, inv *domain.Investment) error {
	if inv == nil || inv.ID == "" || inv.PaymentRef == "" {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}

	st := s.tx.st
	if _, exists := st.investments[inv.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := st.paymentRefs[inv.PaymentRef]; exists {
		return storage.ErrDuplicateKey
	}

	invCopy := *inv
	st.investments[inv.ID] = &invCopy
	st.paymentRefs[inv.PaymentRef] = inv.ID
	st.invOrder = append(st.invOrder, inv.ID)
	return nil
}

// GetByPaymentRef retrieves an investment. Returns ErrNotFound if not exists.
func (s *InvestmentStore) GetByPaymentRef(_ context.Context, paymentRef string) (*domain.Investment, error) {
	id, exists := s.tx.st.paymentRefs[paymentRef]
	if !exists {
		return nil, storage.ErrNotFound
	}
	invCopy := *s.tx.st.investments[id]
	return &invCopy, nil
}

// GetLatestActive retrieves the newest active investment of a participant.
func (s *InvestmentStore) GetLatestActive(_ context.Context, participantID string) (*domain.Investment, error) {
	order := s.tx.st.invOrder
	for i := len(order) - 1; i >= 0; i-- {
		inv := s.tx.st.investments[order[i]]
		if inv.ParticipantID == participantID && inv.Status == domain.InvestmentActive {
			invCopy := *inv
			return &invCopy, nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetByParticipant retrieves all investments of a participant ordered by creation.
func (s *InvestmentStore) GetByParticipant(_ context.Context, participantID string) ([]*domain.Investment, error) {
	var result []*domain.Investment
	for _, id := range s.tx.st.invOrder {
		inv := s.tx.st.investments[id]
		if inv.ParticipantID == participantID {
			invCopy := *inv
			result = append(result, &invCopy)
		}
	}
	return result, nil
}

// WithdrawalStore is an in-memory implementation of storage.WithdrawalStore.
type WithdrawalStore struct {
	tx *tx
}

// Insert adds a new withdrawal. Returns ErrDuplicateKey if id exists.
func (s *WithdrawalStore) Insert(_ context.Context, w *domain.Withdrawal) error {
	if w == nil || w.ID == "" {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}
	if _, exists := s.tx.st.withdrawals[w.ID]; exists {
		return storage.ErrDuplicateKey
	}

	wCopy := *w
	s.tx.st.withdrawals[w.ID] = &wCopy
	return nil
}

// GetByID retrieves a withdrawal. Returns ErrNotFound if not exists.
func (s *WithdrawalStore) GetByID(_ context.Context, id string) (*domain.Withdrawal, error) {
	w, exists := s.tx.st.withdrawals[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	wCopy := *w
	return &wCopy, nil
}

// UpdateStatus moves a pending withdrawal to status.
func (s *WithdrawalStore) UpdateStatus(_ context.Context, id string, status domain.WithdrawalStatus, decidedAt int64) error {
	if err := s.tx.writable(); err != nil {
		return err
	}

	w, exists := s.tx.st.withdrawals[id]
	if !exists {
		return storage.ErrNotFound
	}
	if w.Status != domain.WithdrawalPending {
		return storage.ErrConflict
	}

	wCopy := *w
	wCopy.Status = status
	wCopy.DecidedAt = decidedAt
	s.tx.st.withdrawals[id] = &wCopy
	return nil
}

// ExportProgressStore is an in-memory implementation of storage.ExportProgressStore.
type ExportProgressStore struct {
	tx *tx
}

// GetLastExported returns the last exported Seq, or 0.
func (s *ExportProgressStore) GetLastExported(_ context.Context, exporter string) (int64, error) {
	return s.tx.st.exported[exporter], nil
}

// SetLastExported saves the last exported Seq.
func (s *ExportProgressStore) SetLastExported(_ context.Context, exporter string, seq int64) error {
	if exporter == "" {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}
	s.tx.st.exported[exporter] = seq
	return nil
}

// Verify interface compliance at compile time.
var (
	_ storage.InvestmentStore     = (*InvestmentStore)(nil)
	_ storage.WithdrawalStore     = (*WithdrawalStore)(nil)
	_ storage.ExportProgressStore = (*ExportProgressStore)(nil)
)
