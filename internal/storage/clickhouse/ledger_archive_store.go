package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/observability"
	"binary-comp-engine/internal/storage"
)

// LedgerArchiveStore implements storage.LedgerArchiveStore using ClickHouse.
// MergeTree does not enforce uniqueness, so duplicates are checked before insert.
type LedgerArchiveStore struct {
	conn *Conn
}

// NewLedgerArchiveStore creates a new LedgerArchiveStore.
func NewLedgerArchiveStore(conn *Conn) *LedgerArchiveStore {
	return &LedgerArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.LedgerArchiveStore = (*LedgerArchiveStore)(nil)

// InsertBulk adds multiple entries. Fails entire batch on duplicate ID.
func (s *LedgerArchiveStore) InsertBulk(ctx context.Context, entries []*domain.LedgerEntry) error {
	start := time.Now()
	err := s.insertBulk(ctx, entries)
	observability.RecordDBQuery("clickhouse", "insert_bulk", time.Since(start).Seconds(), err)
	return err
}

func (s *LedgerArchiveStore) insertBulk(ctx context.Context, entries []*domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, exists := seen[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.ID] = struct{}{}
	}

	for _, e := range entries {
		exists, err := s.exists(ctx, e.ID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ledger_archive (
			entry_id, seq, participant_id, purpose, direction,
			amount, balance_before, balance_after, reference, tag, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range entries {
		err = batch.Append(
			e.ID, e.Seq, e.ParticipantID, string(e.Purpose), string(e.Direction),
			e.Amount, e.BalanceBefore, e.BalanceAfter, e.Reference, e.Tag, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByParticipant retrieves archived entries of a participant ordered by Seq ASC.
func (s *LedgerArchiveStore) GetByParticipant(ctx context.Context, participantID string) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT entry_id, seq, participant_id, purpose, direction,
			amount, balance_before, balance_after, reference, tag, created_at
		FROM ledger_archive FINAL
		WHERE participant_id = ?
		ORDER BY seq ASC
	`

	rows, err := s.conn.Query(ctx, query, participantID)
	if err != nil {
		return nil, fmt.Errorf("query by participant: %w", err)
	}
	defer rows.Close()

	return scanLedgerArchive(rows)
}

// SumByTag sums credited amounts with the given tag created within [start, end].
func (s *LedgerArchiveStore) SumByTag(ctx context.Context, tag string, start, end int64) (decimal.Decimal, error) {
	query := `
		SELECT sum(amount)
		FROM ledger_archive FINAL
		WHERE tag = ? AND direction = ? AND created_at >= ? AND created_at <= ?
	`

	var sum decimal.Decimal
	err := s.conn.QueryRow(ctx, query, tag, string(domain.DirectionCredit), start, end).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum by tag: %w", err)
	}
	return sum, nil
}

func (s *LedgerArchiveStore) exists(ctx context.Context, entryID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM ledger_archive WHERE entry_id = ?`, entryID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanLedgerArchive(rows chRows) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry

	for rows.Next() {
		var (
			e                  domain.LedgerEntry
			purpose, direction string
		)

		err := rows.Scan(
			&e.ID, &e.Seq, &e.ParticipantID, &purpose, &direction,
			&e.Amount, &e.BalanceBefore, &e.BalanceAfter, &e.Reference, &e.Tag, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger archive row: %w", err)
		}

		e.Purpose = domain.Purpose(purpose)
		e.Direction = domain.Direction(direction)
		e.Status = domain.EntryStatusCompleted
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger archive rows: %w", err)
	}

	return entries, nil
}
