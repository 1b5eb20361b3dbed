package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// CareerLevelStore implements storage.CareerLevelStore using PostgreSQL.
type CareerLevelStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.CareerLevelStore = (*CareerLevelStore)(nil)

// Upsert inserts or replaces a level by ID.
func (s *CareerLevelStore) Upsert(ctx context.Context, l *domain.CareerLevel) error {
	query := `
		INSERT INTO career_levels (level_id, rank, name, threshold, reward, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (level_id) DO UPDATE SET
			rank = EXCLUDED.rank,
			name = EXCLUDED.name,
			threshold = EXCLUDED.threshold,
			reward = EXCLUDED.reward,
			active = EXCLUDED.active
	`

	_, err := s.q.Exec(ctx, query, l.ID, l.Rank, l.Name, numeric(l.Threshold), numeric(l.Reward), l.Active)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("upsert career level: %w", err)
	}
	return nil
}

// GetActive retrieves active levels ordered by Rank ASC.
func (s *CareerLevelStore) GetActive(ctx context.Context) ([]*domain.CareerLevel, error) {
	return s.query(ctx, `WHERE active`)
}

// GetAll retrieves every level ordered by Rank ASC.
func (s *CareerLevelStore) GetAll(ctx context.Context) ([]*domain.CareerLevel, error) {
	return s.query(ctx, ``)
}

func (s *CareerLevelStore) query(ctx context.Context, where string) ([]*domain.CareerLevel, error) {
	query := `
		SELECT level_id, rank, name, threshold::text, reward::text, active
		FROM career_levels ` + where + `
		ORDER BY rank ASC, level_id ASC
	`

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query career levels: %w", err)
	}
	defer rows.Close()

	var result []*domain.CareerLevel
	for rows.Next() {
		var (
			l                 domain.CareerLevel
			threshold, reward string
		)
		if err := rows.Scan(&l.ID, &l.Rank, &l.Name, &threshold, &reward, &l.Active); err != nil {
			return nil, fmt.Errorf("scan career level: %w", err)
		}
		if err := parseNumerics([]string{threshold, reward}, &l.Threshold, &l.Reward); err != nil {
			return nil, err
		}
		result = append(result, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate career levels: %w", err)
	}
	return result, nil
}

// CareerProgressStore implements storage.CareerProgressStore using PostgreSQL.
// Completed tiers live in career_completions and are append-only.
type CareerProgressStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.CareerProgressStore = (*CareerProgressStore)(nil)

// Get retrieves a participant's progress. Returns ErrNotFound if not exists.
func (s *CareerProgressStore) Get(ctx context.Context, participantID string) (*domain.CareerProgress, error) {
	query := `
		SELECT participant_id, current_level_id, progress::text, total_business_volume::text,
			total_rewards::text, version, updated_at
		FROM career_progress
		WHERE participant_id = $1
	`

	p, err := scanCareerProgress(s.q.QueryRow(ctx, query, participantID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get career progress: %w", err)
	}

	completed, err := s.completions(ctx, participantID)
	if err != nil {
		return nil, err
	}
	p.Completed = completed
	return p, nil
}

// Insert adds a new progress record. Returns ErrDuplicateKey if exists.
func (s *CareerProgressStore) Insert(ctx context.Context, p *domain.CareerProgress) error {
	query := `
		INSERT INTO career_progress (
			participant_id, current_level_id, progress, total_business_volume, total_rewards, version, updated_at
		) VALUES ($1, $2, $3, $4, $5, 0, $6)
	`

	_, err := s.q.Exec(ctx, query,
		p.ParticipantID,
		nullString(p.CurrentLevelID),
		numeric(p.Progress),
		numeric(p.TotalBusinessVolume),
		numeric(p.TotalRewards),
		p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert career progress: %w", err)
	}
	p.Version = 0

	return s.syncCompletions(ctx, p, nil)
}

// Update writes p if the stored version equals p.Version, then increments p.Version.
func (s *CareerProgressStore) Update(ctx context.Context, p *domain.CareerProgress) error {
	query := `
		UPDATE career_progress SET
			current_level_id = $3, progress = $4, total_business_volume = $5,
			total_rewards = $6, updated_at = $7, version = version + 1
		WHERE participant_id = $1 AND version = $2
	`

	tag, err := s.q.Exec(ctx, query,
		p.ParticipantID,
		p.Version,
		nullString(p.CurrentLevelID),
		numeric(p.Progress),
		numeric(p.TotalBusinessVolume),
		numeric(p.TotalRewards),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update career progress: %w", err)
	}
	if err := versionedResult(ctx, s.q, tag.RowsAffected(),
		`SELECT 1 FROM career_progress WHERE participant_id = $1`, p.ParticipantID); err != nil {
		return err
	}

	stored, err := s.completions(ctx, p.ParticipantID)
	if err != nil {
		return err
	}
	if err := s.syncCompletions(ctx, p, stored); err != nil {
		return err
	}
	p.Version++
	return nil
}

// syncCompletions inserts completed tiers missing from stored.
func (s *CareerProgressStore) syncCompletions(ctx context.Context, p *domain.CareerProgress, stored []domain.CompletedLevel) error {
	have := make(map[string]struct{}, len(stored))
	for _, c := range stored {
		have[c.LevelID] = struct{}{}
	}

	query := `
		INSERT INTO career_completions (participant_id, level_id, name, reward, completed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, c := range p.Completed {
		if _, ok := have[c.LevelID]; ok {
			continue
		}
		if _, err := s.q.Exec(ctx, query, p.ParticipantID, c.LevelID, c.Name, numeric(c.Reward), c.CompletedAt); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert career completion: %w", err)
		}
	}
	return nil
}

func (s *CareerProgressStore) completions(ctx context.Context, participantID string) ([]domain.CompletedLevel, error) {
	query := `
		SELECT level_id, name, reward::text, completed_at
		FROM career_completions
		WHERE participant_id = $1
		ORDER BY completed_at ASC, level_id ASC
	`

	rows, err := s.q.Query(ctx, query, participantID)
	if err != nil {
		return nil, fmt.Errorf("query career completions: %w", err)
	}
	defer rows.Close()

	var result []domain.CompletedLevel
	for rows.Next() {
		var (
			c      domain.CompletedLevel
			reward string
		)
		if err := rows.Scan(&c.LevelID, &c.Name, &reward, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan career completion: %w", err)
		}
		if c.Reward, err = parseNumeric(reward); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate career completions: %w", err)
	}
	return result, nil
}

func scanCareerProgress(row pgx.Row) (*domain.CareerProgress, error) {
	var (
		p              domain.CareerProgress
		currentLevelID *string
		amounts        [3]string
	)

	err := row.Scan(&p.ParticipantID, &currentLevelID, &amounts[0], &amounts[1], &amounts[2], &p.Version, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.CurrentLevelID = derefString(currentLevelID)
	if err := parseNumerics(amounts[:], &p.Progress, &p.TotalBusinessVolume, &p.TotalRewards); err != nil {
		return nil, err
	}
	return &p, nil
}
