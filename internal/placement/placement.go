// Package placement inserts participants into the binary tree and keeps
// the derived downline counts in step with the tree shape.
package placement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/observability"
	"binary-comp-engine/internal/storage"
)

// DefaultMaxDepth bounds spillover along one leg.
const DefaultMaxDepth = 10000

// Placement outcomes reported to metrics.
const (
	outcomeRoot      = "root"
	outcomeDirect    = "direct"
	outcomeSpillover = "spillover"
	outcomeFailed    = "failed"
)

// Options configures an Engine.
type Options struct {
	MaxDepth int
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Engine places participants in the tree.
type Engine struct {
	store    storage.Store
	maxDepth int
	log      zerolog.Logger
	now      func() time.Time
}

// New creates a new placement Engine.
func New(store storage.Store, opts Options) *Engine {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:    store,
		maxDepth: opts.MaxDepth,
		log:      opts.Logger.With().Str("component", "placement").Logger(),
		now:      opts.Now,
	}
}

// InsertRequest describes one placement.
type InsertRequest struct {
	// Participant is created if it has no record yet.
	Participant *domain.Participant

	// SponsorID defaults to the root when empty.
	SponsorID string

	// Leg is the requested side under a binary sponsor. Optional.
	Leg domain.Leg

	// AsRoot places the participant as the tree root.
	AsRoot bool

	// Strict fails with ErrSlotOccupied instead of spilling over.
	Strict bool
}

// Result is where the participant ended up.
type Result struct {
	ParentID  string
	Leg       domain.Leg
	Depth     int  // levels below the sponsor, 0 for a direct placement
	Spillover bool // placed below the sponsor rather than under it
}

// Insert places a participant in its own transaction. On failure nothing
// is persisted, including the participant record.
func (e *Engine) Insert(ctx context.Context, req InsertRequest) (*Result, error) {
	var result *Result
	notify := func(err error, wait time.Duration) {
		observability.RecordConflictRetry("placement_insert")
		e.log.Debug().Err(err).Dur("wait", wait).Msg("retrying placement after conflict")
	}
	err := storage.InTxRetry(ctx, e.store, notify, func(tx storage.Tx) error {
		var err error
		result, err = e.InsertTx(ctx, tx, req)
		return err
	})
	if err != nil {
		observability.RecordPlacement(outcomeFailed)
		return nil, err
	}

	outcome := outcomeDirect
	switch {
	case req.AsRoot:
		outcome = outcomeRoot
	case result.Spillover:
		outcome = outcomeSpillover
	}
	observability.RecordPlacement(outcome)

	e.log.Info().
		Str("participant_id", req.Participant.ID).
		Str("parent_id", result.ParentID).
		Str("leg", result.Leg.String()).
		Int("depth", result.Depth).
		Msg("participant placed")
	return result, nil
}

// InsertTx places a participant inside the caller's transaction.
func (e *Engine) InsertTx(ctx context.Context, tx storage.Tx, req InsertRequest) (*Result, error) {
	p := req.Participant
	if p == nil || p.ID == "" {
		return nil, fmt.Errorf("insert: %w", storage.ErrInvalidInput)
	}
	if _, ok := domain.ParseLeg(string(req.Leg)); !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidLeg, req.Leg)
	}

	if _, err := tx.Tree().GetByID(ctx, p.ID); err == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyPlaced, p.ID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get tree node: %w", err)
	}

	now := e.now().UnixMilli()

	if req.AsRoot {
		return e.insertRoot(ctx, tx, p, now)
	}

	sponsor, err := e.loadSponsor(ctx, tx, req.SponsorID)
	if err != nil {
		return nil, err
	}

	var result *Result
	if sponsor.IsRoot() {
		result = &Result{ParentID: sponsor.ParticipantID, Leg: req.Leg}
	} else {
		result, err = e.findSlot(ctx, tx.Tree(), sponsor, req.Leg, req.Strict)
		if err != nil {
			return nil, err
		}
	}

	if err := e.ensureParticipant(ctx, tx, p, sponsor.ParticipantID, req.Leg, now); err != nil {
		return nil, err
	}

	node := domain.NewTreeNode(p.ID, domain.NodeKindBinary)
	node.ParentID = result.ParentID
	node.Leg = result.Leg
	node.CreatedAt = now
	node.UpdatedAt = now
	if err := tx.Tree().Insert(ctx, node); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyPlaced, p.ID)
		}
		return nil, fmt.Errorf("insert tree node: %w", err)
	}

	if err := e.link(ctx, tx.Tree(), node, now); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) insertRoot(ctx context.Context, tx storage.Tx, p *domain.Participant, now int64) (*Result, error) {
	if _, err := tx.Tree().GetRoot(ctx); err == nil {
		return nil, domain.ErrRootExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get root: %w", err)
	}

	if err := e.ensureParticipant(ctx, tx, p, "", domain.LegNone, now); err != nil {
		return nil, err
	}

	node := domain.NewTreeNode(p.ID, domain.NodeKindRoot)
	node.CreatedAt = now
	node.UpdatedAt = now
	if err := tx.Tree().Insert(ctx, node); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, domain.ErrRootExists
		}
		return nil, fmt.Errorf("insert root node: %w", err)
	}
	return &Result{}, nil
}

// loadSponsor resolves the sponsor's tree node. An empty id means the root.
func (e *Engine) loadSponsor(ctx context.Context, tx storage.Tx, sponsorID string) (*domain.TreeNode, error) {
	if sponsorID == "" {
		root, err := tx.Tree().GetRoot(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no root", domain.ErrSponsorNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("get root: %w", err)
		}
		sponsorID = root.ParticipantID
	}

	sponsor, err := tx.Participants().GetByID(ctx, sponsorID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSponsorNotFound, sponsorID)
	}
	if err != nil {
		return nil, fmt.Errorf("get sponsor: %w", err)
	}
	if !sponsor.IsActive() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrSponsorNotFound, sponsorID, sponsor.Status)
	}

	node, err := tx.Tree().GetByID(ctx, sponsorID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s is not placed", domain.ErrSponsorNotFound, sponsorID)
	}
	if err != nil {
		return nil, fmt.Errorf("get sponsor node: %w", err)
	}
	return node, nil
}

// ensureParticipant creates the participant record unless one exists already.
func (e *Engine) ensureParticipant(ctx context.Context, tx storage.Tx, p *domain.Participant, sponsorID string, leg domain.Leg, now int64) error {
	_, err := tx.Participants().GetByID(ctx, p.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("get participant: %w", err)
	}

	record := *p
	record.SponsorID = sponsorID
	record.Leg = leg
	if record.Status == "" {
		record.Status = domain.StatusActive
	}
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if err := tx.Participants().Insert(ctx, &record); err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

// link attaches node to its parent and increments downline counts on every
// binary ancestor. The root counts direct children only.
func (e *Engine) link(ctx context.Context, tree storage.TreeStore, node *domain.TreeNode, now int64) error {
	parent, err := tree.GetByID(ctx, node.ParentID)
	if err != nil {
		return fmt.Errorf("get parent %s: %w", node.ParentID, err)
	}

	if parent.IsRoot() {
		parent.DirectChildren++
		parent.AddDownline(node.Leg)
		parent.UpdatedAt = now
		if err := tree.Update(ctx, parent); err != nil {
			return fmt.Errorf("update root: %w", err)
		}
		return nil
	}

	if parent.Child(node.Leg) != "" {
		// Taken by a concurrent placement since the slot was chosen.
		return fmt.Errorf("link %s: %w", node.ParticipantID, storage.ErrConflict)
	}
	parent.SetChild(node.Leg, node.ParticipantID)
	parent.AddDownline(node.Leg)
	parent.UpdatedAt = now
	if err := tree.Update(ctx, parent); err != nil {
		return fmt.Errorf("update parent: %w", err)
	}

	return WalkUp(ctx, tree, parent, func(ancestor *domain.TreeNode, from domain.Leg) (bool, error) {
		if ancestor.IsRoot() {
			return false, nil
		}
		ancestor.AddDownline(from)
		ancestor.UpdatedAt = now
		if err := tree.Update(ctx, ancestor); err != nil {
			return false, fmt.Errorf("update ancestor %s: %w", ancestor.ParticipantID, err)
		}
		return true, nil
	})
}
