package memory

import (
	"context"
	"slices"
	"sync"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

type walletKey struct {
	participantID string
	purpose       domain.Purpose
}

// state is one immutable-on-commit snapshot of every aggregate.
// Stored values are never mutated in place: writers store fresh copies,
// so a shallow map copy is a valid snapshot.
type state struct {
	participants map[string]*domain.Participant // keyed by id
	codes        map[string]string              // code -> id
	nodes        map[string]*domain.TreeNode     // keyed by participant id
	nodeOrder    []string                        // insertion order
	rootID       string
	wallets      map[walletKey]*domain.Wallet
	entries      []*domain.LedgerEntry // Seq ASC
	entryIDs     map[string]struct{}
	seq          int64
	levels       map[string]*domain.CareerLevel
	progress     map[string]*domain.CareerProgress
	investments  map[string]*domain.Investment // keyed by id
	paymentRefs  map[string]string             // payment ref -> investment id
	invOrder     []string
	withdrawals  map[string]*domain.Withdrawal
	exported     map[string]int64
}

func newState() *state {
	return &state{
		participants: make(map[string]*domain.Participant),
		codes:        make(map[string]string),
		nodes:        make(map[string]*domain.TreeNode),
		wallets:      make(map[walletKey]*domain.Wallet),
		entryIDs:     make(map[string]struct{}),
		levels:       make(map[string]*domain.CareerLevel),
		progress:     make(map[string]*domain.CareerProgress),
		investments:  make(map[string]*domain.Investment),
		paymentRefs:  make(map[string]string),
		withdrawals:  make(map[string]*domain.Withdrawal),
		exported:     make(map[string]int64),
	}
}

func (s *state) clone() *state {
	return &state{
		participants: cloneMap(s.participants),
		codes:        cloneMap(s.codes),
		nodes:        cloneMap(s.nodes),
		nodeOrder:    slices.Clone(s.nodeOrder),
		rootID:       s.rootID,
		wallets:      cloneMap(s.wallets),
		entries:      slices.Clone(s.entries),
		entryIDs:     cloneMap(s.entryIDs),
		seq:          s.seq,
		levels:       cloneMap(s.levels),
		progress:     cloneMap(s.progress),
		investments:  cloneMap(s.investments),
		paymentRefs:  cloneMap(s.paymentRefs),
		invOrder:     slices.Clone(s.invOrder),
		withdrawals:  cloneMap(s.withdrawals),
		exported:     cloneMap(s.exported),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store is an in-memory implementation of storage.Store.
// Transactions are serialized and applied copy-on-commit; versioned updates
// are checked exactly like the PostgreSQL backend.
type Store struct {
	mu sync.RWMutex
	st *state
}

// NewStore creates a new empty in-memory store.
func NewStore() *Store {
	return &Store{st: newState()}
}

// InTx runs fn against a private copy and publishes it when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// View runs fn against the committed state. Writes fail with ErrReadOnly.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&tx{st: s.st, readOnly: true})
}

// tx binds the per-aggregate stores to one state.
type tx struct {
	st       *state
	readOnly bool
}

func (t *tx) Participants() storage.ParticipantStore { return &ParticipantStore{t} }
func (t *tx) Tree() storage.TreeStore { return &TreeStore{t} }
func (t *tx) Wallets() storage.WalletStore { return &WalletStore{t} }
func (t *tx) Ledger() storage.LedgerEntryStore { return &LedgerEntryStore{t} }
func (t *tx) CareerLevels() storage.CareerLevelStore { return &CareerLevelStore{t} }
func (t *tx) CareerProgress() storage.CareerProgressStore { return &CareerProgressStore{t} }
func (t *tx) Investments() storage.InvestmentStore { return &InvestmentStore{t} }
func (t *tx) Withdrawals() storage.WithdrawalStore { return &WithdrawalStore{t} }
func (t *tx) ExportProgress() storage.ExportProgressStore { return &ExportProgressStore{t} }

func (t *tx) writable() error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	return nil
}

// Verify interface compliance at compile time.
var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*tx)(nil)
)
