package placement

import (
	"context"
	"errors"
	"fmt"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
)

// VisitFunc is called for every ancestor with the leg the walk came up
// from. Returning false stops the walk.
type VisitFunc func(ancestor *domain.TreeNode, from domain.Leg) (bool, error)

// WalkUp visits the ancestors of start, nearest first. The walk stops at
// the root or at a missing parent. Revisiting a node fails with ErrTreeCycle.
func WalkUp(ctx context.Context, tree storage.TreeStore, start *domain.TreeNode, visit VisitFunc) error {
	visited := map[string]struct{}{start.ParticipantID: {}}
	cur := start

	for cur.ParentID != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, seen := visited[cur.ParentID]; seen {
			return fmt.Errorf("%w: %s revisited", domain.ErrTreeCycle, cur.ParentID)
		}

		ancestor, err := tree.GetByID(ctx, cur.ParentID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get ancestor %s: %w", cur.ParentID, err)
		}
		visited[ancestor.ParticipantID] = struct{}{}

		cont, err := visit(ancestor, cur.Leg)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
		cur = ancestor
	}
	return nil
}

// findSlot picks the free slot for a binary sponsor.
func (e *Engine) findSlot(ctx context.Context, tree storage.TreeStore, sponsor *domain.TreeNode, leg domain.Leg, strict bool) (*Result, error) {
	if leg == domain.LegNone {
		return e.firstFreeSlot(ctx, tree, sponsor)
	}
	return e.spillAlong(ctx, tree, sponsor, leg, strict)
}

// spillAlong descends along one leg until that leg is free on a node.
func (e *Engine) spillAlong(ctx context.Context, tree storage.TreeStore, sponsor *domain.TreeNode, leg domain.Leg, strict bool) (*Result, error) {
	visited := map[string]struct{}{sponsor.ParticipantID: {}}
	cur := sponsor

	for depth := 0; ; depth++ {
		childID := cur.Child(leg)
		if childID == "" {
			return &Result{
				ParentID:  cur.ParticipantID,
				Leg:       leg,
				Depth:     depth,
				Spillover: depth > 0,
			}, nil
		}
		if strict {
			return nil, fmt.Errorf("%w: %s %s", domain.ErrSlotOccupied, sponsor.ParticipantID, leg)
		}
		if depth >= e.maxDepth {
			return nil, fmt.Errorf("%w: %s %s beyond depth %d", domain.ErrNoAvailableSlot, sponsor.ParticipantID, leg, e.maxDepth)
		}
		if _, seen := visited[childID]; seen {
			return nil, fmt.Errorf("%w: %s revisited", domain.ErrTreeCycle, childID)
		}
		visited[childID] = struct{}{}

		next, err := tree.GetByID(ctx, childID)
		if err != nil {
			return nil, fmt.Errorf("get node %s: %w", childID, err)
		}
		cur = next
	}
}

type frame struct {
	node  *domain.TreeNode
	depth int
}

// firstFreeSlot searches the sponsor's subtree depth-first: own left, own
// right, then the left subtree, then the right subtree.
func (e *Engine) firstFreeSlot(ctx context.Context, tree storage.TreeStore, sponsor *domain.TreeNode) (*Result, error) {
	visited := map[string]struct{}{sponsor.ParticipantID: {}}
	stack := []frame{{node: sponsor}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, leg := range []domain.Leg{domain.LegLeft, domain.LegRight} {
			if top.node.Child(leg) == "" {
				return &Result{
					ParentID:  top.node.ParticipantID,
					Leg:       leg,
					Depth:     top.depth,
					Spillover: top.depth > 0,
				}, nil
			}
		}
		if top.depth >= e.maxDepth {
			continue
		}

		// Right first so the left subtree is popped first.
		for _, childID := range []string{top.node.RightChildID, top.node.LeftChildID} {
			if _, seen := visited[childID]; seen {
				return nil, fmt.Errorf("%w: %s revisited", domain.ErrTreeCycle, childID)
			}
			visited[childID] = struct{}{}

			child, err := tree.GetByID(ctx, childID)
			if err != nil {
				return nil, fmt.Errorf("get node %s: %w", childID, err)
			}
			stack = append(stack, frame{node: child, depth: top.depth + 1})
		}
	}

	return nil, fmt.Errorf("%w: %s within depth %d", domain.ErrNoAvailableSlot, sponsor.ParticipantID, e.maxDepth)
}
