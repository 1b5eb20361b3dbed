// Package career evaluates cumulative leg volume against the ordered
// career tiers and pays each tier's one-time reward.
package career

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/events"
	"binary-comp-engine/internal/idhash"
	"binary-comp-engine/internal/ledger"
	"binary-comp-engine/internal/observability"
	"binary-comp-engine/internal/storage"
)

// Options configures an Engine.
type Options struct {
	Events events.Publisher // optional
	Logger zerolog.Logger
	Now    func() time.Time
}

// Engine evaluates career progress.
type Engine struct {
	store  storage.Store
	ledger *ledger.Ledger
	events events.Publisher
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a new career Engine.
func New(store storage.Store, l *ledger.Ledger, opts Options) *Engine {
	if opts.Events == nil {
		opts.Events = events.Noop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:  store,
		ledger: l,
		events: opts.Events,
		log:    opts.Logger.With().Str("component", "career").Logger(),
		now:    opts.Now,
	}
}

// Evaluate brings a participant's career progress up to date with the
// current business volume. A tier is reached only when both legs meet its
// threshold; several tiers may complete in one call. A completed tier is
// never paid again.
func (e *Engine) Evaluate(ctx context.Context, participantID string) (*domain.CareerProgress, error) {
	var (
		progress *domain.CareerProgress
		reached  []domain.CompletedLevel
	)
	notify := func(err error, wait time.Duration) {
		observability.RecordConflictRetry("career_evaluate")
		e.log.Debug().Err(err).Dur("wait", wait).Str("participant_id", participantID).Msg("retrying career evaluation after conflict")
	}
	err := storage.InTxRetry(ctx, e.store, notify, func(tx storage.Tx) error {
		var err error
		progress, reached, err = e.evaluateTx(ctx, tx, participantID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate career %s: %w", participantID, err)
	}

	for _, c := range reached {
		observability.RecordCareerReward(c.Name)
		e.log.Info().
			Str("participant_id", participantID).
			Str("level_id", c.LevelID).
			Str("level", c.Name).
			Str("reward", c.Reward.String()).
			Msg("career level reached")
		e.publish(ctx, participantID, c)
	}
	return progress, nil
}

func (e *Engine) evaluateTx(ctx context.Context, tx storage.Tx, participantID string) (*domain.CareerProgress, []domain.CompletedLevel, error) {
	node, err := tx.Tree().GetByID(ctx, participantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, participantID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get node: %w", err)
	}

	levels, err := tx.CareerLevels().GetActive(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("get active levels: %w", err)
	}

	progress, err := tx.CareerProgress().Get(ctx, participantID)
	isNew := errors.Is(err, storage.ErrNotFound)
	if isNew {
		progress = domain.NewCareerProgress(participantID)
	} else if err != nil {
		return nil, nil, fmt.Errorf("get progress: %w", err)
	}
	before := progress.Clone()

	now := e.now().UnixMilli()
	var reached []domain.CompletedLevel
	for _, level := range levels {
		if progress.IsCompleted(level.ID) || !Satisfies(node, level) {
			continue
		}

		if level.Reward.IsPositive() {
			_, err := e.ledger.Tx(tx).Credit(ctx, ledger.Posting{
				ParticipantID: participantID,
				Purpose:       domain.PurposeCareerReward,
				Amount:        level.Reward,
				Reference:     idhash.CareerReference(participantID, level.ID),
				Tag:           domain.TagCareerReward,
				Meta: map[string]string{
					"level_id": level.ID,
					"level":    level.Name,
				},
			})
			if err != nil {
				return nil, nil, fmt.Errorf("credit reward for %s: %w", level.Name, err)
			}
		}

		c := domain.CompletedLevel{
			LevelID:     level.ID,
			Name:        level.Name,
			CompletedAt: now,
			Reward:      level.Reward,
		}
		progress.Completed = append(progress.Completed, c)
		progress.TotalRewards = progress.TotalRewards.Add(level.Reward)
		reached = append(reached, c)
	}

	progress.TotalBusinessVolume = node.TotalBusiness()
	progress.CurrentLevelID, progress.Progress = Position(progress, levels)

	if !isNew && len(reached) == 0 && sameSnapshot(before, progress) {
		return progress, nil, nil
	}

	progress.UpdatedAt = now
	if isNew {
		err = tx.CareerProgress().Insert(ctx, progress)
	} else {
		err = tx.CareerProgress().Update(ctx, progress)
	}
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, nil, fmt.Errorf("insert progress: %w", storage.ErrConflict)
		}
		return nil, nil, fmt.Errorf("save progress: %w", err)
	}
	return progress, reached, nil
}

// Satisfies reports whether both legs of n meet the level's threshold.
func Satisfies(n *domain.TreeNode, level *domain.CareerLevel) bool {
	return n.LeftBusiness.GreaterThanOrEqual(level.Threshold) &&
		n.RightBusiness.GreaterThanOrEqual(level.Threshold)
}

// Position returns the first uncompleted tier and the volume counted
// toward it: total volume minus the threshold of the highest completed
// tier, floored at zero. levels must be ordered by rank.
//
// Progress is measured on summed volume while completion needs each leg to
// reach the threshold, so with very unequal legs it overstates how close
// the next tier is.
func Position(p *domain.CareerProgress, levels []*domain.CareerLevel) (string, decimal.Decimal) {
	if len(levels) == 0 {
		return "", decimal.Zero
	}

	current := ""
	base := decimal.Zero
	for _, level := range levels {
		if p.IsCompleted(level.ID) {
			if level.Threshold.GreaterThan(base) {
				base = level.Threshold
			}
			continue
		}
		if current == "" {
			current = level.ID
		}
	}

	progress := p.TotalBusinessVolume.Sub(base)
	if progress.IsNegative() {
		progress = decimal.Zero
	}
	return current, progress
}

func sameSnapshot(a, b *domain.CareerProgress) bool {
	return a.CurrentLevelID == b.CurrentLevelID &&
		a.Progress.Equal(b.Progress) &&
		a.TotalBusinessVolume.Equal(b.TotalBusinessVolume)
}

// Failure is one participant whose evaluation failed.
type Failure struct {
	ParticipantID string
	Err           error
}

// EvaluateMany evaluates each participant in turn. Failures are logged,
// counted and returned; they do not stop the remaining evaluations.
func (e *Engine) EvaluateMany(ctx context.Context, participantIDs []string) (map[string]*domain.CareerProgress, []Failure) {
	results := make(map[string]*domain.CareerProgress, len(participantIDs))
	var failures []Failure

	for _, id := range participantIDs {
		if err := ctx.Err(); err != nil {
			failures = append(failures, Failure{ParticipantID: id, Err: err})
			continue
		}
		p, err := e.Evaluate(ctx, id)
		if err != nil {
			observability.RecordCareerFailure()
			e.log.Error().Err(err).Str("participant_id", id).Msg("career evaluation failed")
			failures = append(failures, Failure{ParticipantID: id, Err: err})
			continue
		}
		results[id] = p
	}
	return results, failures
}

// Progress returns the stored progress of a participant, or an empty
// record if it was never evaluated.
func (e *Engine) Progress(ctx context.Context, participantID string) (*domain.CareerProgress, error) {
	var progress *domain.CareerProgress
	err := e.store.View(ctx, func(tx storage.Tx) error {
		p, err := tx.CareerProgress().Get(ctx, participantID)
		if errors.Is(err, storage.ErrNotFound) {
			progress = domain.NewCareerProgress(participantID)
			return nil
		}
		progress = p
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return progress, nil
}

func (e *Engine) publish(ctx context.Context, participantID string, c domain.CompletedLevel) {
	err := e.events.Publish(ctx, events.Event{
		Type:          events.TypeCareerRewarded,
		ParticipantID: participantID,
		Fields: map[string]string{
			"level_id": c.LevelID,
			"level":    c.Name,
			"reward":   c.Reward.String(),
		},
		OccurredAt: c.CompletedAt,
	})
	if err != nil {
		e.log.Warn().Err(err).Str("participant_id", participantID).Msg("publish career event failed")
	}
}
