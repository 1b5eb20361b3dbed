package verification

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/placement"
	"binary-comp-engine/internal/storage"
)

// TreeVerifier checks node invariants and links across the whole tree.
type TreeVerifier struct {
	store storage.Store
	log   zerolog.Logger
}

// NewTreeVerifier creates a new TreeVerifier.
func NewTreeVerifier(store storage.Store, log zerolog.Logger) *TreeVerifier {
	return &TreeVerifier{
		store: store,
		log:   log.With().Str("component", "tree_verifier").Logger(),
	}
}

// VerifyAll checks every node from one snapshot.
func (v *TreeVerifier) VerifyAll(ctx context.Context) (*Report, error) {
	var nodes []*domain.TreeNode
	err := v.store.View(ctx, func(tx storage.Tx) error {
		var err error
		nodes, err = tx.Tree().GetAll(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}

	counts, err := placement.CountDownlines(nodes)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.TreeNode, len(nodes))
	for _, n := range nodes {
		byID[n.ParticipantID] = n
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ParticipantID < nodes[j].ParticipantID
	})

	report := &Report{}
	for _, n := range nodes {
		divs := CheckNode(n, counts[n.ParticipantID])
		divs = append(divs, checkLinks(n, byID)...)
		report.add(divs)
	}

	ev := v.log.Info()
	if !report.OK() {
		ev = v.log.Warn()
	}
	ev.Int("nodes", report.Checked).
		Int("divergent", report.Divergent).
		Msg("tree verification completed")
	return report, nil
}

// checkLinks verifies that n's children point back at n on the right side
// and that n's parent exists.
func checkLinks(n *domain.TreeNode, byID map[string]*domain.TreeNode) []Divergence {
	var divs []Divergence
	id := n.ParticipantID

	if n.Kind != domain.NodeKindRoot {
		if _, ok := byID[n.ParentID]; !ok {
			divs = append(divs, Divergence{Subject: id, Field: "ParentID", Expected: "existing node", Actual: n.ParentID})
		}
	}

	children := []struct {
		childID string
		leg     domain.Leg
	}{
		{n.LeftChildID, domain.LegLeft},
		{n.RightChildID, domain.LegRight},
	}
	for _, c := range children {
		if c.childID == "" {
			continue
		}
		child, ok := byID[c.childID]
		if !ok {
			divs = append(divs, Divergence{Subject: id, Field: string(c.leg) + " child", Expected: "existing node", Actual: c.childID})
			continue
		}
		if child.ParentID != id {
			divs = append(divs, Divergence{Subject: c.childID, Field: "ParentID", Expected: id, Actual: child.ParentID})
		}
		if child.Leg != c.leg {
			divs = append(divs, Divergence{Subject: c.childID, Field: "Leg", Expected: string(c.leg), Actual: string(child.Leg)})
		}
	}
	return divs
}
