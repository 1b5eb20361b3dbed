package memory

import (
	"context"
	"sync"

	"binary-comp-engine/internal/storage"
)

// PaymentRefGuard is an in-memory implementation of storage.PaymentRefGuard.
type PaymentRefGuard struct {
	mu   sync.Mutex
	refs map[string]struct{}
}

// NewPaymentRefGuard creates a new in-memory guard.
func NewPaymentRefGuard() *PaymentRefGuard {
	return &PaymentRefGuard{refs: make(map[string]struct{})}
}

// Claim records ref. Returns false if it was already claimed.
func (g *PaymentRefGuard) Claim(_ context.Context, ref string) (bool, error) {
	if ref == "" {
		return false, storage.ErrInvalidInput
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.refs[ref]; exists {
		return false, nil
	}
	g.refs[ref] = struct{}{}
	return true, nil
}

// Release forgets ref.
func (g *PaymentRefGuard) Release(_ context.Context, ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.refs, ref)
	return nil
}

// Verify interface compliance at compile time.
var _ storage.PaymentRefGuard = (*PaymentRefGuard)(nil)
