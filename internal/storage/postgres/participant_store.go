package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// ParticipantStore implements storage.ParticipantStore using PostgreSQL.
type ParticipantStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.ParticipantStore = (*ParticipantStore)(nil)

const participantColumns = `participant_id, code, sponsor_id, leg, status, created_at, updated_at`

// Insert adds a new participant. Returns ErrDuplicateKey if id or code exists.
func (s *ParticipantStore) Insert(ctx context.Context, p *domain.Participant) error {
	query := `
		INSERT INTO participants (` + participantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.q.Exec(ctx, query,
		p.ID,
		p.Code,
		nullString(p.SponsorID),
		string(p.Leg),
		string(p.Status),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

// GetByID retrieves a participant. Returns ErrNotFound if not exists.
func (s *ParticipantStore) GetByID(ctx context.Context, id string) (*domain.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE participant_id = $1`

	p, err := scanParticipant(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get participant by id: %w", err)
	}
	return p, nil
}

// GetByCode retrieves a participant by business code. Returns ErrNotFound if not exists.
func (s *ParticipantStore) GetByCode(ctx context.Context, code string) (*domain.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE code = $1`

	p, err := scanParticipant(s.q.QueryRow(ctx, query, code))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get participant by code: %w", err)
	}
	return p, nil
}

// UpdateStatus changes the lifecycle status. Returns ErrNotFound if not exists.
func (s *ParticipantStore) UpdateStatus(ctx context.Context, id string, status domain.Status, updatedAt int64) error {
	query := `UPDATE participants SET status = $2, updated_at = $3 WHERE participant_id = $1`

	tag, err := s.q.Exec(ctx, query, id, string(status), updatedAt)
	if err != nil {
		return fmt.Errorf("update participant status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanParticipant(row pgx.Row) (*domain.Participant, error) {
	var (
		p         domain.Participant
		sponsorID *string
		leg       string
		status    string
	)

	err := row.Scan(&p.ID, &p.Code, &sponsorID, &leg, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.SponsorID = derefString(sponsorID)
	p.Leg = domain.Leg(leg)
	p.Status = domain.Status(status)
	return &p, nil
}
