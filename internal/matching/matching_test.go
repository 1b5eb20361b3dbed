package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/events"
	"binary-comp-engine/internal/idhash"
	"binary-comp-engine/internal/ledger"
	"binary-comp-engine/internal/placement"
	"binary-comp-engine/internal/storage"
	"binary-comp-engine/internal/storage/memory"
)

var defaultTerms = PackageTerms{BinaryPct: decimal.NewFromInt(10), CapAmount: decimal.NewFromInt(1000)}

type fixture struct {
	store     *memory.Store
	ledger    *ledger.Ledger
	engine    *Engine
	placement *placement.Engine
	events    *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	l := ledger.New(store, ledger.Options{Logger: zerolog.Nop()})
	rec := events.NewRecorder()
	return &fixture{
		store:     store,
		ledger:    l,
		engine:    New(store, l, Options{Workers: 4, Events: rec, Logger: zerolog.Nop()}),
		placement: placement.New(store, placement.Options{Logger: zerolog.Nop()}),
		events:    rec,
	}
}

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// seedNode stores a standalone node with the given state and an active participant.
func (f *fixture) seedNode(t *testing.T, n *domain.TreeNode) {
	t.Helper()
	ctx := context.Background()
	err := f.store.InTx(ctx, func(tx storage.Tx) error {
		p := &domain.Participant{ID: n.ParticipantID, Code: "C-" + n.ParticipantID, Status: domain.StatusActive}
		if err := tx.Participants().Insert(ctx, p); err != nil {
			return err
		}
		return tx.Tree().Insert(ctx, n)
	})
	if err != nil {
		t.Fatalf("seed %s: %v", n.ParticipantID, err)
	}
}

func (f *fixture) place(t *testing.T, id, sponsor string, leg domain.Leg, asRoot bool) {
	t.Helper()
	_, err := f.placement.Insert(context.Background(), placement.InsertRequest{
		Participant: &domain.Participant{ID: id, Code: "C-" + id, Status: domain.StatusActive},
		SponsorID:   sponsor,
		Leg:         leg,
		AsRoot:      asRoot,
	})
	if err != nil {
		t.Fatalf("place %s: %v", id, err)
	}
}

func (f *fixture) node(t *testing.T, id string) *domain.TreeNode {
	t.Helper()
	var n *domain.TreeNode
	err := f.store.View(context.Background(), func(tx storage.Tx) error {
		var err error
		n, err = tx.Tree().GetByID(context.Background(), id)
		return err
	})
	if err != nil {
		t.Fatalf("get node %s: %v", id, err)
	}
	return n
}

func (f *fixture) post(t *testing.T, id string, amount int64, leg domain.Leg) []string {
	t.Helper()
	touched, err := f.engine.PostVolume(context.Background(), id, d(amount), leg)
	if err != nil {
		t.Fatalf("PostVolume %s: %v", id, err)
	}
	return touched
}

func (f *fixture) cycle(t *testing.T, id, cycleID string, terms PackageTerms) *Payout {
	t.Helper()
	payout, err := f.engine.RunMatchingCycle(context.Background(), id, terms, cycleID)
	if err != nil {
		t.Fatalf("RunMatchingCycle %s: %v", id, err)
	}
	return payout
}

func assertDec(t *testing.T, name string, got decimal.Decimal, want int64) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Errorf("%s: got %s, want %d", name, got, want)
	}
}

func assertInvariants(t *testing.T, n *domain.TreeNode) {
	t.Helper()
	if n.LeftMatched.GreaterThan(n.LeftBusiness) || n.RightMatched.GreaterThan(n.RightBusiness) {
		t.Errorf("%s: matched exceeds business: %+v", n.ParticipantID, n)
	}
	for name, v := range map[string]decimal.Decimal{
		"left_business": n.LeftBusiness, "right_business": n.RightBusiness,
		"left_carry": n.LeftCarry, "right_carry": n.RightCarry,
		"left_matched": n.LeftMatched, "right_matched": n.RightMatched,
	} {
		if v.IsNegative() {
			t.Errorf("%s: %s negative: %s", n.ParticipantID, name, v)
		}
	}
}

func TestRunMatchingCycle_SingleCycleMatch(t *testing.T) {
	f := newFixture(t)
	n := domain.NewTreeNode("p1", domain.NodeKindRoot)
	n.LeftBusiness = d(100)
	f.seedNode(t, n)

	f.post(t, "p1", 500, domain.LegRight)
	payout := f.cycle(t, "p1", "2024-01-01", defaultTerms)

	assertDec(t, "bonus", payout.Bonus, 10)
	got := f.node(t, "p1")
	assertDec(t, "right carry", got.RightCarry, 400)
	assertDec(t, "left carry", got.LeftCarry, 0)
	assertDec(t, "left matched", got.LeftMatched, 100)
	assertInvariants(t, got)

	w, _ := f.ledger.Wallet(context.Background(), "p1", domain.PurposeMatchingBonus)
	assertDec(t, "wallet", w.Balance, 10)

	entries, _ := f.ledger.Entries(context.Background(), "p1", domain.PurposeMatchingBonus)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Tag != domain.TagMatchingBonus || e.Meta["cycle"] != "2024-01-01" || e.Meta["matched"] != "100" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Reference != idhash.MatchingReference("p1", "2024-01-01") {
		t.Errorf("reference: got %s", e.Reference)
	}
	if len(f.events.OfType(events.TypeMatchingPaid)) != 1 {
		t.Error("expected a matching event")
	}
}

func TestRunMatchingCycle_CarryConsumption(t *testing.T) {
	f := newFixture(t)
	n := domain.NewTreeNode("p1", domain.NodeKindRoot)
	n.LeftCarry = d(400)
	f.seedNode(t, n)

	f.post(t, "p1", 400, domain.LegLeft)
	f.post(t, "p1", 400, domain.LegRight)
	payout := f.cycle(t, "p1", "c1", PackageTerms{BinaryPct: d(10)})

	assertDec(t, "bonus", payout.Bonus, 40)
	got := f.node(t, "p1")
	assertDec(t, "left carry", got.LeftCarry, 400)
	assertDec(t, "right carry", got.RightCarry, 0)
	assertInvariants(t, got)
}

func TestRunMatchingCycle_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.seedNode(t, domain.NewTreeNode("p1", domain.NodeKindRoot))
	f.post(t, "p1", 700, domain.LegLeft)
	f.post(t, "p1", 300, domain.LegRight)

	if p := f.cycle(t, "p1", "c1", defaultTerms); p == nil {
		t.Fatal("first cycle should apply")
	}
	before := f.node(t, "p1")

	for _, cycleID := range []string{"c1", "c2"} {
		if p := f.cycle(t, "p1", cycleID, defaultTerms); p != nil {
			t.Errorf("%s: rerun without new volume should be a no-op, got %+v", cycleID, p)
		}
	}

	after := f.node(t, "p1")
	if after.Version != before.Version {
		t.Errorf("node rewritten: version %d -> %d", before.Version, after.Version)
	}
	entries, _ := f.ledger.Entries(context.Background(), "p1", domain.PurposeMatchingBonus)
	if len(entries) != 1 {
		t.Errorf("expected 1 bonus entry, got %d", len(entries))
	}
}

func TestRunMatchingCycle_MultiCycleNoDoubleCount(t *testing.T) {
	f := newFixture(t)
	f.place(t, "root", "", domain.LegNone, true)
	f.place(t, "s", "root", domain.LegNone, false)
	f.place(t, "a", "s", domain.LegLeft, false)
	f.place(t, "b", "s", domain.LegRight, false)
	f.place(t, "a1", "a", domain.LegLeft, false)

	terms := PackageTerms{BinaryPct: d(10)}

	// Cycle 1: left 300 (via a grandchild), right 100.
	f.post(t, "a1", 300, domain.LegLeft)
	f.post(t, "b", 100, domain.LegLeft)
	p1 := f.cycle(t, "s", "day-1", terms)
	assertDec(t, "cycle 1 matched", p1.Matched, 100)
	s := f.node(t, "s")
	assertDec(t, "cycle 1 left carry", s.LeftCarry, 200)
	assertDec(t, "cycle 1 left matched", s.LeftMatched, 300)

	// Cycle 2: the left carry must be counted once, not again as unmatched business.
	f.post(t, "a", 100, domain.LegRight)
	f.post(t, "b", 400, domain.LegRight)
	p2 := f.cycle(t, "s", "day-2", terms)
	assertDec(t, "cycle 2 matched", p2.Matched, 300)
	assertDec(t, "cycle 2 bonus", p2.Bonus, 30)

	s = f.node(t, "s")
	assertDec(t, "left carry", s.LeftCarry, 0)
	assertDec(t, "right carry", s.RightCarry, 100)
	assertInvariants(t, s)

	// Everything matched plus what is carried equals the business of each side.
	totalMatched := p1.Matched.Add(p2.Matched)
	if !totalMatched.Add(s.LeftCarry).Equal(s.LeftBusiness) {
		t.Errorf("left not conserved: matched %s + carry %s != business %s", totalMatched, s.LeftCarry, s.LeftBusiness)
	}
	if !totalMatched.Add(s.RightCarry).Equal(s.RightBusiness) {
		t.Errorf("right not conserved: matched %s + carry %s != business %s", totalMatched, s.RightCarry, s.RightBusiness)
	}

	if p3 := f.cycle(t, "s", "day-3", terms); p3 != nil {
		t.Errorf("cycle 3 without volume should be a no-op, got %+v", p3)
	}
}

func TestRunMatchingCycle_RejectsNegativeTerms(t *testing.T) {
	f := newFixture(t)
	f.seedNode(t, domain.NewTreeNode("p1", domain.NodeKindRoot))

	_, err := f.engine.RunMatchingCycle(context.Background(), "p1", PackageTerms{BinaryPct: d(-1)}, "c1")
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestComputeCycle(t *testing.T) {
	earned := func(capAmount, paid int64) *domain.TreeNode {
		n := domain.NewTreeNode("n", domain.NodeKindBinary)
		n.LeftBusiness = d(5000)
		n.RightBusiness = d(3000)
		c := d(capAmount)
		n.EarningCap = &c
		n.BinaryEarned = d(paid)
		return n
	}

	tests := []struct {
		name       string
		node       *domain.TreeNode
		terms      PackageTerms
		wantBonus  int64
		wantCapped bool
	}{
		{
			name:      "package cap limits payable",
			node:      &domain.TreeNode{LeftBusiness: d(5000), RightBusiness: d(3000)},
			terms:     defaultTerms,
			wantBonus: 100,
		},
		{
			name:      "zero cap is uncapped",
			node:      &domain.TreeNode{LeftBusiness: d(5000), RightBusiness: d(3000)},
			terms:     PackageTerms{BinaryPct: d(10)},
			wantBonus: 300,
		},
		{
			name:       "earning cap limits bonus",
			node:       earned(50, 30),
			terms:      defaultTerms,
			wantBonus:  20,
			wantCapped: true,
		},
		{
			name:       "earning cap exhausted",
			node:       earned(50, 50),
			terms:      defaultTerms,
			wantBonus:  0,
			wantCapped: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ComputeCycle(tt.node, tt.terms)
			assertDec(t, "bonus", r.Bonus, tt.wantBonus)
			if r.EarningCapped != tt.wantCapped {
				t.Errorf("capped: got %v, want %v", r.EarningCapped, tt.wantCapped)
			}
			assertDec(t, "matched", r.Matched, 3000)
			assertDec(t, "left carry", r.LeftCarry, 2000)
			assertDec(t, "right carry", r.RightCarry, 0)
		})
	}
}

func TestComputeCycle_FractionalRounding(t *testing.T) {
	n := &domain.TreeNode{LeftBusiness: decimal.RequireFromString("0.33333333"), RightBusiness: d(1)}
	r := ComputeCycle(n, PackageTerms{BinaryPct: decimal.RequireFromString("7.5")})
	if !r.Bonus.Equal(decimal.RequireFromString("0.025")) {
		t.Errorf("bonus: got %s, want 0.025", r.Bonus)
	}
}
