package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/domain"
)

// Store runs units of work against one backend.
type Store interface {
	// InTx runs fn in a transaction. Every write made through tx is committed
	// together when fn returns nil and discarded otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the per-aggregate stores bound to one unit of work.
type Tx interface {
	Participants() ParticipantStore
	Tree() TreeStore
	Wallets() WalletStore
	Ledger() LedgerEntryStore
	CareerLevels() CareerLevelStore
	CareerProgress() CareerProgressStore
	Investments() InvestmentStore
	Withdrawals() WithdrawalStore
	ExportProgress() ExportProgressStore
}

// ParticipantStore provides access to participants storage.
type ParticipantStore interface {
	// Insert adds a new participant. Returns ErrDuplicateKey if id or code exists.
	Insert(ctx context.Context, p *domain.Participant) error

	// GetByID retrieves a participant. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Participant, error)

	// GetByCode retrieves a participant by business code. Returns ErrNotFound if not exists.
	GetByCode(ctx context.Context, code string) (*domain.Participant, error)

	// UpdateStatus changes the lifecycle status. Returns ErrNotFound if not exists.
	UpdateStatus(ctx context.Context, id string, status domain.Status, updatedAt int64) error
}

// TreeStore provides access to tree_nodes storage.
type TreeStore interface {
	// Insert adds a new node with Version 0. Returns ErrDuplicateKey if the participant is placed.
	Insert(ctx context.Context, n *domain.TreeNode) error

	// GetByID retrieves the node of a participant. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, participantID string) (*domain.TreeNode, error)

	// GetRoot retrieves the root node. Returns ErrNotFound if there is none.
	GetRoot(ctx context.Context) (*domain.TreeNode, error)

	// Update writes n if the stored version equals n.Version, then increments n.Version.
	// Returns ErrConflict otherwise.
	Update(ctx context.Context, n *domain.TreeNode) error

	// GetAll retrieves every node ordered by creation.
	GetAll(ctx context.Context) ([]*domain.TreeNode, error)

	// GetWithUnmatched retrieves nodes with business not yet consumed by a cycle.
	GetWithUnmatched(ctx context.Context) ([]*domain.TreeNode, error)
}

// WalletStore provides access to wallets storage.
type WalletStore interface {
	// Insert adds a new wallet. Returns ErrDuplicateKey if (participant, purpose) exists.
	Insert(ctx context.Context, w *domain.Wallet) error

	// Get retrieves a wallet. Returns ErrNotFound if not exists.
	Get(ctx context.Context, participantID string, purpose domain.Purpose) (*domain.Wallet, error)

	// Update writes w if the stored version equals w.Version, then increments w.Version.
	Update(ctx context.Context, w *domain.Wallet) error

	// GetByParticipant retrieves all wallets of a participant ordered by purpose.
	GetByParticipant(ctx context.Context, participantID string) ([]*domain.Wallet, error)

	// GetAll retrieves every wallet.
	GetAll(ctx context.Context) ([]*domain.Wallet, error)
}

// LedgerEntryStore provides access to the append-only ledger_entries storage.
type LedgerEntryStore interface {
	// Append stores e and assigns e.Seq. Returns ErrDuplicateKey if e.ID exists.
	Append(ctx context.Context, e *domain.LedgerEntry) error

	// GetByWallet retrieves the entries of one wallet ordered by Seq ASC.
	GetByWallet(ctx context.Context, participantID string, purpose domain.Purpose) ([]*domain.LedgerEntry, error)

	// GetByParticipant retrieves all entries of a participant ordered by Seq ASC.
	GetByParticipant(ctx context.Context, participantID string) ([]*domain.LedgerEntry, error)

	// GetAfterSeq retrieves up to limit entries with Seq > seq ordered by Seq ASC.
	GetAfterSeq(ctx context.Context, seq int64, limit int) ([]*domain.LedgerEntry, error)
}

// CareerLevelStore provides access to career_levels storage.
type CareerLevelStore interface {
	// Upsert inserts or replaces a level by ID.
	Upsert(ctx context.Context, l *domain.CareerLevel) error

	// GetActive retrieves active levels ordered by Rank ASC.
	GetActive(ctx context.Context) ([]*domain.CareerLevel, error)

	// GetAll retrieves every level ordered by Rank ASC.
	GetAll(ctx context.Context) ([]*domain.CareerLevel, error)
}

// CareerProgressStore provides access to career_progress storage.
type CareerProgressStore interface {
	// Get retrieves a participant's progress. Returns ErrNotFound if not exists.
	Get(ctx context.Context, participantID string) (*domain.CareerProgress, error)

	// Insert adds a new progress record. Returns ErrDuplicateKey if exists.
	Insert(ctx context.Context, p *domain.CareerProgress) error

	// Update writes p if the stored version equals p.Version, then increments p.Version.
	Update(ctx context.Context, p *domain.CareerProgress) error
}

// InvestmentStore provides access to investments storage.
type InvestmentStore interface {
	// Insert adds a new investment. Returns ErrDuplicateKey if id or payment ref exists.
	Insert(ctx context.Context, inv *domain.Investment) error

	// GetByPaymentRef retrieves an investment. Returns ErrNotFound if not exists.
	GetByPaymentRef(ctx context.Context, paymentRef string) (*domain.Investment, error)

	// GetLatestActive retrieves the newest active investment of a participant.
	// Returns ErrNotFound if there is none.
	GetLatestActive(ctx context.Context, participantID string) (*domain.Investment, error)

	// GetByParticipant retrieves all investments of a participant ordered by creation.
	GetByParticipant(ctx context.Context, participantID string) ([]*domain.Investment, error)
}

// WithdrawalStore provides access to withdrawals storage.
type WithdrawalStore interface {
	// Insert adds a new withdrawal. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, w *domain.Withdrawal) error

	// GetByID retrieves a withdrawal. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Withdrawal, error)

	// UpdateStatus moves a pending withdrawal to status.
	// Returns ErrConflict if it is no longer pending.
	UpdateStatus(ctx context.Context, id string, status domain.WithdrawalStatus, decidedAt int64) error
}

// ExportProgressStore tracks how far a named exporter got through the ledger.
type ExportProgressStore interface {
	// GetLastExported returns the last exported Seq, or 0 if nothing was exported yet.
	GetLastExported(ctx context.Context, exporter string) (int64, error)

	// SetLastExported saves the last exported Seq.
	SetLastExported(ctx context.Context, exporter string, seq int64) error
}

// LedgerArchiveStore is an analytics copy of ledger entries. It is written
// after the fact and is not part of any transaction.
type LedgerArchiveStore interface {
	// InsertBulk adds multiple entries. Fails entire batch on duplicate ID.
	InsertBulk(ctx context.Context, entries []*domain.LedgerEntry) error

	// GetByParticipant retrieves archived entries of a participant ordered by Seq ASC.
	GetByParticipant(ctx context.Context, participantID string) ([]*domain.LedgerEntry, error)

	// SumByTag sums credited amounts with the given tag created within [start, end] (unix ms).
	SumByTag(ctx context.Context, tag string, start, end int64) (decimal.Decimal, error)
}

// PaymentRefGuard rejects external payment references seen before, ahead of
// any engine call.
type PaymentRefGuard interface {
	// Claim records ref. Returns false if it was already claimed.
	Claim(ctx context.Context, ref string) (bool, error)

	// Release forgets ref so a failed investment can be re-driven.
	Release(ctx context.Context, ref string) error
}
