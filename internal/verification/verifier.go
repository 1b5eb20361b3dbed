// Package verification checks stored state against the rules that produced it.
// The ledger verifier replays every wallet's entries; the tree verifier checks
// node invariants and recounts downlines from the tree shape.
package verification

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/placement"
)

// Divergence represents a mismatch between a stored and an expected value.
type Divergence struct {
	Subject  string // wallet "participant/purpose", entry id or node id
	Field    string
	Expected string
	Actual   string
}

func (d Divergence) String() string {
	return fmt.Sprintf("%s %s: expected %s, got %s", d.Subject, d.Field, d.Expected, d.Actual)
}

// Report contains the result of one verification pass.
type Report struct {
	Checked     int // wallets or nodes verified
	Divergent   int // subjects with at least one divergence
	Divergences []Divergence
}

// OK reports whether no divergence was found.
func (r *Report) OK() bool {
	return len(r.Divergences) == 0
}

func (r *Report) add(divs []Divergence) {
	r.Checked++
	if len(divs) > 0 {
		r.Divergent++
		r.Divergences = append(r.Divergences, divs...)
	}
}

// Verifier checks all stored records of one kind.
type Verifier interface {
	VerifyAll(ctx context.Context) (*Report, error)
}

// Compile-time interface check.
var (
	_ Verifier = (*LedgerVerifier)(nil)
	_ Verifier = (*TreeVerifier)(nil)
)

// CheckWallet replays entries, which must be the wallet's entries in Seq
// order. Every entry must move the balance by its signed amount from where
// the previous entry left it, starting at zero, and the final balance must
// equal the stored one.
func CheckWallet(w *domain.Wallet, entries []*domain.LedgerEntry) []Divergence {
	var divs []Divergence
	subject := fmt.Sprintf("%s/%s", w.ParticipantID, w.Purpose)

	if w.Balance.IsNegative() {
		divs = append(divs, Divergence{Subject: subject, Field: "Balance", Expected: ">= 0", Actual: w.Balance.String()})
	}
	if w.Reserved.IsNegative() || w.Reserved.GreaterThan(w.Balance) {
		divs = append(divs, Divergence{Subject: subject, Field: "Reserved", Expected: "0.." + w.Balance.String(), Actual: w.Reserved.String()})
	}

	balance := decimal.Zero
	var lastSeq int64
	for _, e := range entries {
		if e.Seq <= lastSeq {
			divs = append(divs, Divergence{Subject: e.ID, Field: "Seq", Expected: fmt.Sprintf("> %d", lastSeq), Actual: fmt.Sprintf("%d", e.Seq)})
		}
		lastSeq = e.Seq

		if !e.Amount.IsPositive() {
			divs = append(divs, Divergence{Subject: e.ID, Field: "Amount", Expected: "> 0", Actual: e.Amount.String()})
		}
		if !e.BalanceBefore.Equal(balance) {
			divs = append(divs, Divergence{Subject: e.ID, Field: "BalanceBefore", Expected: balance.String(), Actual: e.BalanceBefore.String()})
		}
		want := e.BalanceBefore.Add(e.Signed())
		if !e.BalanceAfter.Equal(want) {
			divs = append(divs, Divergence{Subject: e.ID, Field: "BalanceAfter", Expected: want.String(), Actual: e.BalanceAfter.String()})
		}
		if e.BalanceAfter.IsNegative() {
			divs = append(divs, Divergence{Subject: e.ID, Field: "BalanceAfter", Expected: ">= 0", Actual: e.BalanceAfter.String()})
		}
		balance = e.BalanceAfter
	}

	if !w.Balance.Equal(balance) {
		divs = append(divs, Divergence{Subject: subject, Field: "Balance", Expected: balance.String(), Actual: w.Balance.String()})
	}
	return divs
}

// CheckNode checks the volume fields of n and compares its stored downline
// counters against want.
func CheckNode(n *domain.TreeNode, want placement.Counts) []Divergence {
	var divs []Divergence
	id := n.ParticipantID

	amounts := []struct {
		field string
		value decimal.Decimal
	}{
		{"LeftBusiness", n.LeftBusiness},
		{"RightBusiness", n.RightBusiness},
		{"LeftCarry", n.LeftCarry},
		{"RightCarry", n.RightCarry},
		{"LeftMatched", n.LeftMatched},
		{"RightMatched", n.RightMatched},
		{"BinaryEarned", n.BinaryEarned},
	}
	for _, a := range amounts {
		if a.value.IsNegative() {
			divs = append(divs, Divergence{Subject: id, Field: a.field, Expected: ">= 0", Actual: a.value.String()})
		}
	}

	if n.LeftMatched.GreaterThan(n.LeftBusiness) {
		divs = append(divs, Divergence{Subject: id, Field: "LeftMatched", Expected: "<= " + n.LeftBusiness.String(), Actual: n.LeftMatched.String()})
	}
	if n.RightMatched.GreaterThan(n.RightBusiness) {
		divs = append(divs, Divergence{Subject: id, Field: "RightMatched", Expected: "<= " + n.RightBusiness.String(), Actual: n.RightMatched.String()})
	}
	if n.EarningCap != nil && n.BinaryEarned.GreaterThan(*n.EarningCap) {
		divs = append(divs, Divergence{Subject: id, Field: "BinaryEarned", Expected: "<= " + n.EarningCap.String(), Actual: n.BinaryEarned.String()})
	}

	got := placement.CountsOf(n)
	if got.Left != want.Left {
		divs = append(divs, countDivergence(id, "LeftDownlines", want.Left, got.Left))
	}
	if got.Right != want.Right {
		divs = append(divs, countDivergence(id, "RightDownlines", want.Right, got.Right))
	}
	if got.Direct != want.Direct {
		divs = append(divs, countDivergence(id, "DirectChildren", want.Direct, got.Direct))
	}
	return divs
}

func countDivergence(id, field string, want, got int64) Divergence {
	return Divergence{Subject: id, Field: field, Expected: fmt.Sprintf("%d", want), Actual: fmt.Sprintf("%d", got)}
}
