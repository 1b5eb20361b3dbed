package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"binary-comp-engine/internal/observability"
	"binary-comp-engine/internal/storage"
)

// Store implements storage.Store on PostgreSQL. Every unit of work is one
// pgx transaction; versioned updates detect concurrent writers.
type Store struct {
	pool *Pool
}

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Verify interface compliance at compile time.
var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*tx)(nil)
)

// InTx runs fn in a READ COMMITTED transaction, committing when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, "tx", pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// View runs fn in a REPEATABLE READ read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, "view", pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (s *Store) run(ctx context.Context, operation string, opts pgx.TxOptions, fn func(tx storage.Tx) error) error {
	start := time.Now()
	err := pgx.BeginTxFunc(ctx, s.pool, opts, func(ptx pgx.Tx) error {
		return fn(&tx{q: ptx})
	})
	if isReadOnlyError(err) && !errors.Is(err, storage.ErrReadOnly) {
		err = storage.ErrReadOnly
	}
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), err)
	return err
}

// tx binds the aggregate stores to one pgx transaction.
type tx struct {
	q querier
}

func (t *tx) Participants() storage.ParticipantStore { return &ParticipantStore{q: t.q} }
func (t *tx) Tree() storage.TreeStore { return &TreeStore{q: t.q} }
func (t *tx) Wallets() storage.WalletStore { return &WalletStore{q: t.q} }
func (t *tx) Ledger() storage.LedgerEntryStore { return &LedgerEntryStore{q: t.q} }
func (t *tx) CareerLevels() storage.CareerLevelStore { return &CareerLevelStore{q: t.q} }
func (t *tx) CareerProgress() storage.CareerProgressStore { return &CareerProgressStore{q: t.q} }
func (t *tx) Investments() storage.InvestmentStore { return &InvestmentStore{q: t.q} }
func (t *tx) Withdrawals() storage.WithdrawalStore { return &WithdrawalStore{q: t.q} }
func (t *tx) ExportProgress() storage.ExportProgressStore { return &ExportProgressStore{q: t.q} }

// versionedResult maps the outcome of an UPDATE ... WHERE version = $n.
func versionedResult(ctx context.Context, q querier, affected int64, existsQuery string, key ...any) error {
	if affected == 1 {
		return nil
	}
	var one int
	err := q.QueryRow(ctx, existsQuery, key...).Scan(&one)
	if isNotFoundError(err) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}
	return storage.ErrConflict
}
