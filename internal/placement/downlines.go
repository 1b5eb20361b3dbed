package placement

import (
	"context"
	"fmt"
	"time"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/observability"
	"binary-comp-engine/internal/storage"
)

// Counts are the derived downline counters of one node.
type Counts struct {
	Left   int64
	Right  int64
	Direct int64 // root only
}

// CountsOf returns the counters currently stored on n.
func CountsOf(n *domain.TreeNode) Counts {
	return Counts{Left: n.LeftDownlines, Right: n.RightDownlines, Direct: n.DirectChildren}
}

const (
	unvisited = iota
	visiting
	done
)

// CountDownlines recomputes every node's downline counters from the tree
// shape alone. Binary nodes count their whole left and right subtrees; the
// root counts its direct children, per leg tag and in total.
func CountDownlines(nodes []*domain.TreeNode) (map[string]Counts, error) {
	byID := make(map[string]*domain.TreeNode, len(nodes))
	for _, n := range nodes {
		byID[n.ParticipantID] = n
	}

	sizes := make(map[string]int64, len(nodes))
	state := make(map[string]int, len(nodes))

	for _, n := range nodes {
		if n.IsRoot() || state[n.ParticipantID] == done {
			continue
		}

		// Post-order over an explicit stack. Nodes in the visiting state
		// are exactly the current path, so meeting one again is a cycle.
		stack := []string{n.ParticipantID}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			node := byID[id]

			switch state[id] {
			case unvisited:
				state[id] = visiting
				for _, childID := range []string{node.LeftChildID, node.RightChildID} {
					if childID == "" {
						continue
					}
					child, ok := byID[childID]
					if !ok {
						return nil, fmt.Errorf("node %s: child %s: %w", id, childID, domain.ErrParticipantNotFound)
					}
					if child.IsRoot() {
						return nil, fmt.Errorf("%w: root is a child of %s", domain.ErrTreeCycle, id)
					}
					switch state[childID] {
					case visiting:
						return nil, fmt.Errorf("%w: %s revisited", domain.ErrTreeCycle, childID)
					case unvisited:
						stack = append(stack, childID)
					}
				}
			case visiting:
				stack = stack[:len(stack)-1]
				sizes[id] = 1 + sizes[node.LeftChildID] + sizes[node.RightChildID]
				state[id] = done
			default:
				stack = stack[:len(stack)-1]
			}
		}
	}

	counts := make(map[string]Counts, len(nodes))
	var root *domain.TreeNode
	for _, n := range nodes {
		if n.IsRoot() {
			root = n
			counts[n.ParticipantID] = Counts{}
			continue
		}
		counts[n.ParticipantID] = Counts{
			Left:  sizes[n.LeftChildID],
			Right: sizes[n.RightChildID],
		}
	}

	if root != nil {
		c := Counts{}
		for _, n := range nodes {
			if n.ParentID != root.ParticipantID {
				continue
			}
			c.Direct++
			switch n.Leg {
			case domain.LegLeft:
				c.Left++
			case domain.LegRight:
				c.Right++
			}
		}
		counts[root.ParticipantID] = c
	}
	return counts, nil
}

// Reconcile recomputes downline counters from the tree shape and persists
// the ones that differ. Returns the number of nodes corrected. Running it
// again without placements in between corrects nothing.
func (e *Engine) Reconcile(ctx context.Context) (int, error) {
	var fixed int
	notify := func(err error, wait time.Duration) {
		observability.RecordConflictRetry("placement_reconcile")
		e.log.Debug().Err(err).Dur("wait", wait).Msg("retrying reconcile after conflict")
	}

	err := storage.InTxRetry(ctx, e.store, notify, func(tx storage.Tx) error {
		fixed = 0

		nodes, err := tx.Tree().GetAll(ctx)
		if err != nil {
			return fmt.Errorf("get all nodes: %w", err)
		}

		want, err := CountDownlines(nodes)
		if err != nil {
			return err
		}

		now := e.now().UnixMilli()
		for _, n := range nodes {
			c := want[n.ParticipantID]
			if CountsOf(n) == c {
				continue
			}

			e.log.Warn().
				Str("participant_id", n.ParticipantID).
				Int64("left_stored", n.LeftDownlines).
				Int64("left_actual", c.Left).
				Int64("right_stored", n.RightDownlines).
				Int64("right_actual", c.Right).
				Msg("downline counts drifted")

			n.LeftDownlines = c.Left
			n.RightDownlines = c.Right
			n.DirectChildren = c.Direct
			n.UpdatedAt = now
			if err := tx.Tree().Update(ctx, n); err != nil {
				return fmt.Errorf("update node %s: %w", n.ParticipantID, err)
			}
			fixed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reconcile downlines: %w", err)
	}

	observability.RecordReconcile(fixed)
	return fixed, nil
}
