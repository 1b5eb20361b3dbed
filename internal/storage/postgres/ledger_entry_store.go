package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// LedgerEntryStore implements storage.LedgerEntryStore using PostgreSQL.
// Sequence numbers come from the identity column.
type LedgerEntryStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.LedgerEntryStore = (*LedgerEntryStore)(nil)

const ledgerEntrySelect = `
	SELECT entry_id, seq, participant_id, purpose, direction,
		amount::text, balance_before::text, balance_after::text,
		status, reference, tag, meta, created_at
	FROM ledger_entries
`

// Append stores e and assigns e.Seq. Returns ErrDuplicateKey if e.ID exists.
func (s *LedgerEntryStore) Append(ctx context.Context, e *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (
			entry_id, participant_id, purpose, direction, amount, balance_before, balance_after,
			status, reference, tag, meta, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING seq
	`

	err := s.q.QueryRow(ctx, query,
		e.ID,
		e.ParticipantID,
		string(e.Purpose),
		string(e.Direction),
		numeric(e.Amount),
		numeric(e.BalanceBefore),
		numeric(e.BalanceAfter),
		e.Status,
		e.Reference,
		e.Tag,
		e.Meta,
		e.CreatedAt,
	).Scan(&e.Seq)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// GetByWallet retrieves the entries of one wallet ordered by Seq ASC.
func (s *LedgerEntryStore) GetByWallet(ctx context.Context, participantID string, purpose domain.Purpose) ([]*domain.LedgerEntry, error) {
	return s.query(ctx, ledgerEntrySelect+`
		WHERE participant_id = $1 AND purpose = $2
		ORDER BY seq ASC`, participantID, string(purpose))
}

// GetByParticipant retrieves all entries of a participant ordered by Seq ASC.
func (s *LedgerEntryStore) GetByParticipant(ctx context.Context, participantID string) ([]*domain.LedgerEntry, error) {
	return s.query(ctx, ledgerEntrySelect+` WHERE participant_id = $1 ORDER BY seq ASC`, participantID)
}

// GetAfterSeq retrieves up to limit entries with Seq > seq ordered by Seq ASC.
func (s *LedgerEntryStore) GetAfterSeq(ctx context.Context, seq int64, limit int) ([]*domain.LedgerEntry, error) {
	return s.query(ctx, ledgerEntrySelect+` WHERE seq > $1 ORDER BY seq ASC LIMIT $2`, seq, limit)
}

func (s *LedgerEntryStore) query(ctx context.Context, query string, args ...any) ([]*domain.LedgerEntry, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var result []*domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return result, nil
}

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var (
		e                  domain.LedgerEntry
		purpose, direction string
		amounts            [3]string
	)

	err := row.Scan(
		&e.ID, &e.Seq, &e.ParticipantID, &purpose, &direction,
		&amounts[0], &amounts[1], &amounts[2],
		&e.Status, &e.Reference, &e.Tag, &e.Meta, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Purpose = domain.Purpose(purpose)
	e.Direction = domain.Direction(direction)
	if err := parseNumerics(amounts[:], &e.Amount, &e.BalanceBefore, &e.BalanceAfter); err != nil {
		return nil, err
	}
	return &e, nil
}
