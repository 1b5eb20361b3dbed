package verification

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/ledger"
	"binary-comp-engine/internal/matching"
	"binary-comp-engine/internal/placement"
	"binary-comp-engine/internal/storage"
	"binary-comp-engine/internal/storage/memory"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func entry(id string, seq int64, dir domain.Direction, amount, before, after string) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:            id,
		Seq:           seq,
		ParticipantID: "p1",
		Purpose:       domain.PurposeReferral,
		Direction:     dir,
		Amount:        d(amount),
		BalanceBefore: d(before),
		BalanceAfter:  d(after),
	}
}

func wallet(balance, reserved string) *domain.Wallet {
	w := domain.NewWallet("p1", domain.PurposeReferral, "USD")
	w.Balance = d(balance)
	w.Reserved = d(reserved)
	return w
}

func hasField(divs []Divergence, subject, field string) bool {
	for _, div := range divs {
		if div.Subject == subject && div.Field == field {
			return true
		}
	}
	return false
}

func TestCheckWallet_ExactReplay(t *testing.T) {
	entries := []*domain.LedgerEntry{
		entry("e1", 1, domain.DirectionCredit, "10", "0", "10"),
		entry("e2", 4, domain.DirectionDebit, "2.5", "10", "7.5"),
		entry("e3", 9, domain.DirectionCredit, "0.00000001", "7.5", "7.50000001"),
	}

	if divs := CheckWallet(wallet("7.50000001", "1"), entries); len(divs) != 0 {
		t.Errorf("expected no divergences, got %v", divs)
	}
}

func TestCheckWallet_EmptyWallet(t *testing.T) {
	if divs := CheckWallet(wallet("0", "0"), nil); len(divs) != 0 {
		t.Errorf("expected no divergences, got %v", divs)
	}
	if divs := CheckWallet(wallet("5", "0"), nil); !hasField(divs, "p1/referral", "Balance") {
		t.Errorf("balance without entries should diverge, got %v", divs)
	}
}

func TestCheckWallet_Divergences(t *testing.T) {
	tests := []struct {
		name    string
		wallet  *domain.Wallet
		entries []*domain.LedgerEntry
		subject string
		field   string
	}{
		{
			name:    "wrong after",
			wallet:  wallet("11", "0"),
			entries: []*domain.LedgerEntry{entry("e1", 1, domain.DirectionCredit, "10", "0", "11")},
			subject: "e1",
			field:   "BalanceAfter",
		},
		{
			name:   "broken chain",
			wallet: wallet("13", "0"),
			entries: []*domain.LedgerEntry{
				entry("e1", 1, domain.DirectionCredit, "10", "0", "10"),
				entry("e2", 2, domain.DirectionCredit, "3", "12", "15"),
			},
			subject: "e2",
			field:   "BalanceBefore",
		},
		{
			name:    "final balance",
			wallet:  wallet("9", "0"),
			entries: []*domain.LedgerEntry{entry("e1", 1, domain.DirectionCredit, "10", "0", "10")},
			subject: "p1/referral",
			field:   "Balance",
		},
		{
			name:   "seq order",
			wallet: wallet("20", "0"),
			entries: []*domain.LedgerEntry{
				entry("e1", 5, domain.DirectionCredit, "10", "0", "10"),
				entry("e2", 5, domain.DirectionCredit, "10", "10", "20"),
			},
			subject: "e2",
			field:   "Seq",
		},
		{
			name:    "zero amount",
			wallet:  wallet("0", "0"),
			entries: []*domain.LedgerEntry{entry("e1", 1, domain.DirectionCredit, "0", "0", "0")},
			subject: "e1",
			field:   "Amount",
		},
		{
			name:    "reserved above balance",
			wallet:  wallet("10", "11"),
			entries: []*domain.LedgerEntry{entry("e1", 1, domain.DirectionCredit, "10", "0", "10")},
			subject: "p1/referral",
			field:   "Reserved",
		},
		{
			name:    "overdraft",
			wallet:  wallet("-1", "0"),
			entries: []*domain.LedgerEntry{entry("e1", 1, domain.DirectionDebit, "1", "0", "-1")},
			subject: "e1",
			field:   "BalanceAfter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			divs := CheckWallet(tt.wallet, tt.entries)
			if !hasField(divs, tt.subject, tt.field) {
				t.Errorf("expected divergence %s.%s, got %v", tt.subject, tt.field, divs)
			}
		})
	}
}

func TestCheckNode(t *testing.T) {
	valid := func() *domain.TreeNode {
		n := domain.NewTreeNode("n", domain.NodeKindBinary)
		n.LeftBusiness = d("100")
		n.RightBusiness = d("50")
		n.LeftMatched = d("100")
		n.RightMatched = d("50")
		n.LeftCarry = d("50")
		n.LeftDownlines = 2
		n.RightDownlines = 1
		return n
	}
	counts := placement.Counts{Left: 2, Right: 1}

	if divs := CheckNode(valid(), counts); len(divs) != 0 {
		t.Fatalf("expected no divergences, got %v", divs)
	}

	tests := []struct {
		name   string
		mutate func(n *domain.TreeNode)
		field  string
	}{
		{"matched above business", func(n *domain.TreeNode) { n.RightMatched = d("60") }, "RightMatched"},
		{"negative carry", func(n *domain.TreeNode) { n.RightCarry = d("-1") }, "RightCarry"},
		{"stale left count", func(n *domain.TreeNode) { n.LeftDownlines = 3 }, "LeftDownlines"},
		{"stale direct count", func(n *domain.TreeNode) { n.DirectChildren = 1 }, "DirectChildren"},
		{"earning cap", func(n *domain.TreeNode) {
			limit := d("5")
			n.EarningCap = &limit
			n.BinaryEarned = d("6")
		}, "BinaryEarned"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := valid()
			tt.mutate(n)
			if divs := CheckNode(n, counts); !hasField(divs, "n", tt.field) {
				t.Errorf("expected %s divergence, got %v", tt.field, divs)
			}
		})
	}
}

type env struct {
	store     *memory.Store
	ledger    *ledger.Ledger
	placement *placement.Engine
	matching  *matching.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.NewStore()
	l := ledger.New(store, ledger.Options{Logger: zerolog.Nop()})
	return &env{
		store:     store,
		ledger:    l,
		placement: placement.New(store, placement.Options{Logger: zerolog.Nop()}),
		matching:  matching.New(store, l, matching.Options{Logger: zerolog.Nop()}),
	}
}

func (e *env) place(t *testing.T, id, sponsor string, leg domain.Leg) {
	t.Helper()
	_, err := e.placement.Insert(context.Background(), placement.InsertRequest{
		Participant: &domain.Participant{ID: id, Code: "C-" + id, Status: domain.StatusActive},
		SponsorID:   sponsor,
		Leg:         leg,
		AsRoot:      sponsor == "",
	})
	if err != nil {
		t.Fatalf("place %s: %v", id, err)
	}
}

// buildTree places root → s (left) → a (left), b (right) → c under a.
func (e *env) buildTree(t *testing.T) {
	t.Helper()
	e.place(t, "root", "", domain.LegNone)
	e.place(t, "s", "root", domain.LegLeft)
	e.place(t, "a", "s", domain.LegLeft)
	e.place(t, "b", "s", domain.LegRight)
	e.place(t, "c", "a", domain.LegLeft)
}

func TestLedgerVerifier_VerifyAll(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	postings := []ledger.Posting{
		{ParticipantID: "p1", Purpose: domain.PurposeReferral, Amount: d("10"), Tag: domain.TagReferral},
		{ParticipantID: "p1", Purpose: domain.PurposeReferral, Amount: d("2.5"), Tag: domain.TagReferral},
		{ParticipantID: "p2", Purpose: domain.PurposeMatchingBonus, Amount: d("7"), Tag: domain.TagMatchingBonus},
	}
	for _, p := range postings {
		if _, err := e.ledger.Credit(ctx, p); err != nil {
			t.Fatalf("Credit failed: %v", err)
		}
	}
	if _, err := e.ledger.Debit(ctx, ledger.Posting{ParticipantID: "p1", Purpose: domain.PurposeReferral, Amount: d("4"), Tag: domain.TagWithdrawal}); err != nil {
		t.Fatalf("Debit failed: %v", err)
	}

	v := NewLedgerVerifier(e.store, zerolog.Nop())
	report, err := v.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}
	if report.Checked != 2 || !report.OK() {
		t.Fatalf("expected 2 clean wallets, got %+v", report)
	}

	// Tamper with a balance behind the ledger's back.
	err = e.store.InTx(ctx, func(tx storage.Tx) error {
		w, err := tx.Wallets().Get(ctx, "p2", domain.PurposeMatchingBonus)
		if err != nil {
			return err
		}
		w.Balance = d("8")
		return tx.Wallets().Update(ctx, w)
	})
	if err != nil {
		t.Fatalf("tamper failed: %v", err)
	}

	report, err = v.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}
	if report.Divergent != 1 || !hasField(report.Divergences, "p2/matching_bonus", "Balance") {
		t.Errorf("expected balance divergence on p2, got %+v", report.Divergences)
	}

	divs, err := v.VerifyWallet(ctx, "p1", domain.PurposeReferral)
	if err != nil {
		t.Fatalf("VerifyWallet failed: %v", err)
	}
	if len(divs) != 0 {
		t.Errorf("p1 should still be clean, got %v", divs)
	}
}

func TestTreeVerifier_VerifyAll(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.buildTree(t)

	if _, err := e.matching.PostVolume(ctx, "a", d("300"), domain.LegLeft); err != nil {
		t.Fatalf("PostVolume failed: %v", err)
	}
	if _, err := e.matching.PostVolume(ctx, "b", d("200"), domain.LegRight); err != nil {
		t.Fatalf("PostVolume failed: %v", err)
	}
	terms := matching.PackageTerms{BinaryPct: d("10"), CapAmount: d("1000")}
	if _, err := e.matching.RunMatchingCycle(ctx, "s", terms, "2026-03-02"); err != nil {
		t.Fatalf("RunMatchingCycle failed: %v", err)
	}

	v := NewTreeVerifier(e.store, zerolog.Nop())
	report, err := v.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}
	if report.Checked != 5 || !report.OK() {
		t.Fatalf("expected 5 clean nodes, got %+v", report)
	}

	err = e.store.InTx(ctx, func(tx storage.Tx) error {
		n, err := tx.Tree().GetByID(ctx, "s")
		if err != nil {
			return err
		}
		n.LeftDownlines = 7
		n.RightMatched = n.RightBusiness.Add(d("1"))
		return tx.Tree().Update(ctx, n)
	})
	if err != nil {
		t.Fatalf("tamper failed: %v", err)
	}

	report, err = v.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}
	if report.Divergent != 1 {
		t.Errorf("expected one divergent node, got %d: %v", report.Divergent, report.Divergences)
	}
	if !hasField(report.Divergences, "s", "LeftDownlines") || !hasField(report.Divergences, "s", "RightMatched") {
		t.Errorf("missing divergences on s: %v", report.Divergences)
	}
}

func TestTreeVerifier_BrokenLink(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.buildTree(t)

	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		n, err := tx.Tree().GetByID(ctx, "b")
		if err != nil {
			return err
		}
		n.Leg = domain.LegLeft
		return tx.Tree().Update(ctx, n)
	})
	if err != nil {
		t.Fatalf("tamper failed: %v", err)
	}

	report, err := NewTreeVerifier(e.store, zerolog.Nop()).VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}
	if !hasField(report.Divergences, "b", "Leg") {
		t.Errorf("expected leg divergence on b, got %v", report.Divergences)
	}
}
