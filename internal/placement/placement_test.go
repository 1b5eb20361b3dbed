package placement

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/storage"
	"binary-comp-engine/internal/storage/memory"
)

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	e := New(store, Options{MaxDepth: 50, Logger: zerolog.Nop()})

	if _, err := e.Insert(context.Background(), InsertRequest{Participant: participant("root"), AsRoot: true}); err != nil {
		t.Fatalf("insert root: %v", err)
	}
	return e, store
}

func participant(id string) *domain.Participant {
	return &domain.Participant{ID: id, Code: "C-" + id, Status: domain.StatusActive}
}

func place(t *testing.T, e *Engine, id, sponsor string, leg domain.Leg) *Result {
	t.Helper()
	res, err := e.Insert(context.Background(), InsertRequest{Participant: participant(id), SponsorID: sponsor, Leg: leg})
	if err != nil {
		t.Fatalf("insert %s under %s/%s: %v", id, sponsor, leg, err)
	}
	return res
}

func node(t *testing.T, store storage.Store, id string) *domain.TreeNode {
	t.Helper()
	var n *domain.TreeNode
	err := store.View(context.Background(), func(tx storage.Tx) error {
		var err error
		n, err = tx.Tree().GetByID(context.Background(), id)
		return err
	})
	if err != nil {
		t.Fatalf("get node %s: %v", id, err)
	}
	return n
}

// buildBinary creates root -> s (untagged), with s having children a (left)
// and b (right).
func buildBinary(t *testing.T, e *Engine) {
	t.Helper()
	place(t, e, "s", "", domain.LegNone)
	place(t, e, "a", "s", domain.LegLeft)
	place(t, e, "b", "s", domain.LegRight)
}

func TestInsert_RootOnlyOnce(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Insert(context.Background(), InsertRequest{Participant: participant("root2"), AsRoot: true})
	if !errors.Is(err, domain.ErrRootExists) {
		t.Errorf("expected ErrRootExists, got %v", err)
	}
}

func TestInsert_RootAcceptsUnlimitedChildren(t *testing.T) {
	e, store := newTestEngine(t)

	for _, id := range []string{"x1", "x2", "x3", "x4"} {
		res := place(t, e, id, "", domain.LegNone)
		if res.ParentID != "root" {
			t.Errorf("%s: expected parent root, got %s", id, res.ParentID)
		}
	}
	place(t, e, "x5", "root", domain.LegLeft)

	root := node(t, store, "root")
	if root.DirectChildren != 5 {
		t.Errorf("DirectChildren: got %d, want 5", root.DirectChildren)
	}
	if root.LeftDownlines != 1 || root.RightDownlines != 0 {
		t.Errorf("root leg counts: got %d/%d, want 1/0", root.LeftDownlines, root.RightDownlines)
	}
	if node(t, store, "x5").Leg != domain.LegLeft {
		t.Error("root child leg tag not recorded")
	}
}

func TestInsert_DirectSlot(t *testing.T) {
	e, store := newTestEngine(t)
	buildBinary(t, e)

	s := node(t, store, "s")
	if s.LeftChildID != "a" || s.RightChildID != "b" {
		t.Errorf("children: got %s/%s, want a/b", s.LeftChildID, s.RightChildID)
	}
	if s.LeftDownlines != 1 || s.RightDownlines != 1 {
		t.Errorf("downlines: got %d/%d, want 1/1", s.LeftDownlines, s.RightDownlines)
	}
	if a := node(t, store, "a"); a.ParentID != "s" || a.Leg != domain.LegLeft {
		t.Errorf("a: parent=%s leg=%s", a.ParentID, a.Leg)
	}
}

func TestInsert_SpilloverStaysOnRequestedLeg(t *testing.T) {
	e, store := newTestEngine(t)
	buildBinary(t, e)

	res := place(t, e, "c", "s", domain.LegLeft)
	if res.ParentID != "a" || res.Leg != domain.LegLeft || !res.Spillover || res.Depth != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	res = place(t, e, "d", "s", domain.LegLeft)
	if res.ParentID != "c" || res.Leg != domain.LegLeft || res.Depth != 2 {
		t.Errorf("unexpected result: %+v", res)
	}

	// Nothing spilled to the right leg.
	b := node(t, store, "b")
	if b.LeftChildID != "" || b.RightChildID != "" {
		t.Errorf("right leg touched: %+v", b)
	}
	a := node(t, store, "a")
	if a.RightChildID != "" {
		t.Errorf("a right slot should stay free, got %s", a.RightChildID)
	}

	s := node(t, store, "s")
	if s.LeftDownlines != 3 || s.RightDownlines != 1 {
		t.Errorf("s downlines: got %d/%d, want 3/1", s.LeftDownlines, s.RightDownlines)
	}
	if a.LeftDownlines != 2 {
		t.Errorf("a left downlines: got %d, want 2", a.LeftDownlines)
	}
}

func TestInsert_StrictFailsOnOccupiedSlot(t *testing.T) {
	e, store := newTestEngine(t)
	buildBinary(t, e)

	_, err := e.Insert(context.Background(), InsertRequest{Participant: participant("c"), SponsorID: "s", Leg: domain.LegLeft, Strict: true})
	if !errors.Is(err, domain.ErrSlotOccupied) {
		t.Fatalf("expected ErrSlotOccupied, got %v", err)
	}

	// Nothing persisted, not even the participant record.
	err = store.View(context.Background(), func(tx storage.Tx) error {
		_, err := tx.Participants().GetByID(context.Background(), "c")
		return err
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected participant to be rolled back, got %v", err)
	}
}

func TestInsert_NoAvailableSlotBeyondMaxDepth(t *testing.T) {
	store := memory.NewStore()
	e := New(store, Options{MaxDepth: 1, Logger: zerolog.Nop()})
	ctx := context.Background()

	if _, err := e.Insert(ctx, InsertRequest{Participant: participant("root"), AsRoot: true}); err != nil {
		t.Fatalf("insert root: %v", err)
	}
	buildBinary(t, e)
	place(t, e, "c", "s", domain.LegLeft)

	_, err := e.Insert(ctx, InsertRequest{Participant: participant("d"), SponsorID: "s", Leg: domain.LegLeft})
	if !errors.Is(err, domain.ErrNoAvailableSlot) {
		t.Fatalf("expected ErrNoAvailableSlot, got %v", err)
	}
	if !errors.Is(err, domain.ErrSlotOccupied) {
		t.Error("ErrNoAvailableSlot should match ErrSlotOccupied")
	}
}

func TestInsert_NoLegSearchesDepthFirst(t *testing.T) {
	e, store := newTestEngine(t)
	buildBinary(t, e)

	// s is full: a's left, then a's right, then a's subtree before b.
	want := []struct {
		id, parent string
		leg        domain.Leg
	}{
		{"n1", "a", domain.LegLeft},
		{"n2", "a", domain.LegRight},
		{"n3", "n1", domain.LegLeft},
		{"n4", "n1", domain.LegRight},
		{"n5", "n3", domain.LegLeft},
	}
	for _, w := range want {
		res := place(t, e, w.id, "s", domain.LegNone)
		if res.ParentID != w.parent || res.Leg != w.leg {
			t.Errorf("%s: got %s/%s, want %s/%s", w.id, res.ParentID, res.Leg, w.parent, w.leg)
		}
	}

	if b := node(t, store, "b"); b.LeftChildID != "" {
		t.Errorf("b should stay empty until a's subtree is searched, got %s", b.LeftChildID)
	}
}

func TestInsert_SponsorErrors(t *testing.T) {
	e, _ := newTestEngine(t)
	buildBinary(t, e)
	ctx := context.Background()

	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.Participants().UpdateStatus(ctx, "a", domain.StatusBlocked, 1)
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	tests := []struct {
		name    string
		sponsor string
	}{
		{"unknown sponsor", "nobody"},
		{"blocked sponsor", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Insert(ctx, InsertRequest{Participant: participant("new-" + tt.name), SponsorID: tt.sponsor, Leg: domain.LegLeft})
			if !errors.Is(err, domain.ErrSponsorNotFound) {
				t.Errorf("expected ErrSponsorNotFound, got %v", err)
			}
		})
	}
}

func TestInsert_RejectsDuplicatesAndBadLegs(t *testing.T) {
	e, _ := newTestEngine(t)
	buildBinary(t, e)
	ctx := context.Background()

	if _, err := e.Insert(ctx, InsertRequest{Participant: participant("a"), SponsorID: "s"}); !errors.Is(err, domain.ErrAlreadyPlaced) {
		t.Errorf("expected ErrAlreadyPlaced, got %v", err)
	}
	if _, err := e.Insert(ctx, InsertRequest{Participant: participant("z"), SponsorID: "s", Leg: "middle"}); !errors.Is(err, domain.ErrInvalidLeg) {
		t.Errorf("expected ErrInvalidLeg, got %v", err)
	}
}

func TestInsert_NoRoot(t *testing.T) {
	e := New(memory.NewStore(), Options{Logger: zerolog.Nop()})

	_, err := e.Insert(context.Background(), InsertRequest{Participant: participant("a")})
	if !errors.Is(err, domain.ErrSponsorNotFound) {
		t.Errorf("expected ErrSponsorNotFound, got %v", err)
	}
}

func TestWalkUp_DetectsCycle(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	err := store.InTx(ctx, func(tx storage.Tx) error {
		a := domain.NewTreeNode("a", domain.NodeKindBinary)
		a.ParentID = "b"
		b := domain.NewTreeNode("b", domain.NodeKindBinary)
		b.ParentID = "a"
		if err := tx.Tree().Insert(ctx, a); err != nil {
			return err
		}
		return tx.Tree().Insert(ctx, b)
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	err = store.View(ctx, func(tx storage.Tx) error {
		start, _ := tx.Tree().GetByID(ctx, "a")
		return WalkUp(ctx, tx.Tree(), start, func(*domain.TreeNode, domain.Leg) (bool, error) {
			return true, nil
		})
	})
	if !errors.Is(err, domain.ErrTreeCycle) {
		t.Errorf("expected ErrTreeCycle, got %v", err)
	}
}
