package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// InvestmentStore implements storage.InvestmentStore using PostgreSQL.
type InvestmentStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.InvestmentStore = (*InvestmentStore)(nil)

const investmentSelect = `
	SELECT investment_id, participant_id, package_id, package_name,
		binary_pct::text, cap_amount::text, referral_pct::text, roi_pct::text, min_amount::text,
		amount::text, payment_ref, status, created_at
	FROM investments
`

// Insert adds a new investment. Returns ErrDuplicateKey if id or payment ref exists.
func (s *InvestmentStore) Insert(ctx context.Context, inv *domain.Investment) error {
	query := `
		INSERT INTO investments (
			investment_id, participant_id, package_id, package_name,
			binary_pct, cap_amount, referral_pct, roi_pct, min_amount,
			amount, payment_ref, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	pkg := inv.Package
	_, err := s.q.Exec(ctx, query,
		inv.ID,
		inv.ParticipantID,
		pkg.ID,
		pkg.Name,
		numeric(pkg.BinaryPct),
		numeric(pkg.CapAmount),
		numeric(pkg.ReferralPct),
		numeric(pkg.RoiPct),
		numeric(pkg.MinAmount),
		numeric(inv.Amount),
		inv.PaymentRef,
		string(inv.Status),
		inv.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert investment: %w", err)
	}
	return nil
}

// GetByPaymentRef retrieves an investment. Returns ErrNotFound if not exists.
func (s *InvestmentStore) GetByPaymentRef(ctx context.Context, paymentRef string) (*domain.Investment, error) {
	inv, err := scanInvestment(s.q.QueryRow(ctx, investmentSelect+` WHERE payment_ref = $1`, paymentRef))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get investment by payment ref: %w", err)
	}
	return inv, nil
}

// GetLatestActive retrieves the newest active investment of a participant.
func (s *InvestmentStore) GetLatestActive(ctx context.Context, participantID string) (*domain.Investment, error) {
	query := investmentSelect + `
		WHERE participant_id = $1 AND status = $2
		ORDER BY seq DESC
		LIMIT 1`

	inv, err := scanInvestment(s.q.QueryRow(ctx, query, participantID, string(domain.InvestmentActive)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest active investment: %w", err)
	}
	return inv, nil
}

// GetByParticipant retrieves all investments of a participant ordered by creation.
func (s *InvestmentStore) GetByParticipant(ctx context.Context, participantID string) ([]*domain.Investment, error) {
	rows, err := s.q.Query(ctx, investmentSelect+` WHERE participant_id = $1 ORDER BY seq ASC`, participantID)
	if err != nil {
		return nil, fmt.Errorf("query investments: %w", err)
	}
	defer rows.Close()

	var result []*domain.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan investment: %w", err)
		}
		result = append(result, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate investments: %w", err)
	}
	return result, nil
}

func scanInvestment(row pgx.Row) (*domain.Investment, error) {
	var (
		inv     domain.Investment
		status  string
		amounts [6]string
	)

	err := row.Scan(
		&inv.ID, &inv.ParticipantID, &inv.Package.ID, &inv.Package.Name,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4],
		&amounts[5], &inv.PaymentRef, &status, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Status = domain.InvestmentStatus(status)
	if err := parseNumerics(amounts[:],
		&inv.Package.BinaryPct, &inv.Package.CapAmount, &inv.Package.ReferralPct,
		&inv.Package.RoiPct, &inv.Package.MinAmount, &inv.Amount,
	); err != nil {
		return nil, err
	}
	return &inv, nil
}

// WithdrawalStore implements storage.WithdrawalStore using PostgreSQL.
type WithdrawalStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.WithdrawalStore = (*WithdrawalStore)(nil)

// Insert adds a new withdrawal. Returns ErrDuplicateKey if id exists.
func (s *WithdrawalStore) Insert(ctx context.Context, w *domain.Withdrawal) error {
	query := `
		INSERT INTO withdrawals (withdrawal_id, participant_id, purpose, amount, status, created_at, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.q.Exec(ctx, query,
		w.ID, w.ParticipantID, string(w.Purpose), numeric(w.Amount), string(w.Status), w.CreatedAt, w.DecidedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// GetByID retrieves a withdrawal. Returns ErrNotFound if not exists.
func (s *WithdrawalStore) GetByID(ctx context.Context, id string) (*domain.Withdrawal, error) {
	query := `
		SELECT withdrawal_id, participant_id, purpose, amount::text, status, created_at, decided_at
		FROM withdrawals
		WHERE withdrawal_id = $1
	`

	var (
		w               domain.Withdrawal
		purpose, status string
		amount          string
	)
	err := s.q.QueryRow(ctx, query, id).Scan(&w.ID, &w.ParticipantID, &purpose, &amount, &status, &w.CreatedAt, &w.DecidedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}

	w.Purpose = domain.Purpose(purpose)
	w.Status = domain.WithdrawalStatus(status)
	if w.Amount, err = parseNumeric(amount); err != nil {
		return nil, err
	}
	return &w, nil
}

// UpdateStatus moves a pending withdrawal to status.
func (s *WithdrawalStore) UpdateStatus(ctx context.Context, id string, status domain.WithdrawalStatus, decidedAt int64) error {
	query := `
		UPDATE withdrawals SET status = $2, decided_at = $3
		WHERE withdrawal_id = $1 AND status = $4
	`

	tag, err := s.q.Exec(ctx, query, id, string(status), decidedAt, string(domain.WithdrawalPending))
	if err != nil {
		return fmt.Errorf("update withdrawal status: %w", err)
	}
	return versionedResult(ctx, s.q, tag.RowsAffected(), `SELECT 1 FROM withdrawals WHERE withdrawal_id = $1`, id)
}

// ExportProgressStore implements storage.ExportProgressStore using PostgreSQL.
type ExportProgressStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.ExportProgressStore = (*ExportProgressStore)(nil)

// GetLastExported returns the last exported Seq, or 0 if nothing was exported yet.
func (s *ExportProgressStore) GetLastExported(ctx context.Context, exporter string) (int64, error) {
	var seq int64
	err := s.q.QueryRow(ctx, `SELECT last_exported FROM export_progress WHERE exporter = $1`, exporter).Scan(&seq)
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get export progress: %w", err)
	}
	return seq, nil
}

// SetLastExported saves the last exported Seq.
func (s *ExportProgressStore) SetLastExported(ctx context.Context, exporter string, seq int64) error {
	query := `
		INSERT INTO export_progress (exporter, last_exported) VALUES ($1, $2)
		ON CONFLICT (exporter) DO UPDATE SET last_exported = EXCLUDED.last_exported
	`
	if _, err := s.q.Exec(ctx, query, exporter, seq); err != nil {
		return fmt.Errorf("set export progress: %w", err)
	}
	return nil
}
