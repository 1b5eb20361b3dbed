package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

const walletSelect = `
	SELECT participant_id, purpose, balance::text, reserved::text, currency, version, created_at, updated_at
	FROM wallets
`

// Insert adds a new wallet. Returns ErrDuplicateKey if (participant, purpose) exists.
func (s *WalletStore) Insert(ctx context.Context, w *domain.Wallet) error {
	query := `
		INSERT INTO wallets (participant_id, purpose, balance, reserved, currency, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
	`

	_, err := s.q.Exec(ctx, query,
		w.ParticipantID,
		string(w.Purpose),
		numeric(w.Balance),
		numeric(w.Reserved),
		w.Currency,
		w.CreatedAt,
		w.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	w.Version = 0
	return nil
}

// Get retrieves a wallet. Returns ErrNotFound if not exists.
func (s *WalletStore) Get(ctx context.Context, participantID string, purpose domain.Purpose) (*domain.Wallet, error) {
	w, err := scanWallet(s.q.QueryRow(ctx, walletSelect+` WHERE participant_id = $1 AND purpose = $2`,
		participantID, string(purpose)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// Update writes w if the stored version equals w.Version, then increments w.Version.
func (s *WalletStore) Update(ctx context.Context, w *domain.Wallet) error {
	query := `
		UPDATE wallets SET balance = $4, reserved = $5, updated_at = $6, version = version + 1
		WHERE participant_id = $1 AND purpose = $2 AND version = $3
	`

	tag, err := s.q.Exec(ctx, query,
		w.ParticipantID,
		string(w.Purpose),
		w.Version,
		numeric(w.Balance),
		numeric(w.Reserved),
		w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	if err := versionedResult(ctx, s.q, tag.RowsAffected(),
		`SELECT 1 FROM wallets WHERE participant_id = $1 AND purpose = $2`,
		w.ParticipantID, string(w.Purpose)); err != nil {
		return err
	}
	w.Version++
	return nil
}

// GetByParticipant retrieves all wallets of a participant ordered by purpose.
func (s *WalletStore) GetByParticipant(ctx context.Context, participantID string) ([]*domain.Wallet, error) {
	return s.query(ctx, walletSelect+` WHERE participant_id = $1 ORDER BY purpose ASC`, participantID)
}

// GetAll retrieves every wallet ordered by participant and purpose.
func (s *WalletStore) GetAll(ctx context.Context) ([]*domain.Wallet, error) {
	return s.query(ctx, walletSelect+` ORDER BY participant_id ASC, purpose ASC`)
}

func (s *WalletStore) query(ctx context.Context, query string, args ...any) ([]*domain.Wallet, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	defer rows.Close()

	var result []*domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		result = append(result, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}
	return result, nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var (
		w                 domain.Wallet
		purpose           string
		balance, reserved string
	)

	err := row.Scan(&w.ParticipantID, &purpose, &balance, &reserved, &w.Currency, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	w.Purpose = domain.Purpose(purpose)
	if err := parseNumerics([]string{balance, reserved}, &w.Balance, &w.Reserved); err != nil {
		return nil, err
	}
	return &w, nil
}
