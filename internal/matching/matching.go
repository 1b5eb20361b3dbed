// Package matching accrues business volume up the tree and runs the
// periodic leg-matching cycle that pays the binary bonus.
package matching

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/events"
	"binary-comp-engine/internal/ledger"
	"binary-comp-engine/internal/storage"
)

// DefaultWorkers bounds RunBatch parallelism.
const DefaultWorkers = 8

// CareerEvaluator re-evaluates career progress after volume changes.
type CareerEvaluator interface {
	Evaluate(ctx context.Context, participantID string) (*domain.CareerProgress, error)
}

// Options configures an Engine.
type Options struct {
	Workers int
	Career  CareerEvaluator  // optional
	Events  events.Publisher // optional
	// RootTerms match the root when its owner holds no active investment.
	// Nil skips such a root like any other node without a package.
	RootTerms *PackageTerms
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Engine posts volume and runs matching cycles.
type Engine struct {
	store   storage.Store
	ledger  *ledger.Ledger
	career  CareerEvaluator
	events  events.Publisher
	workers int
	root    *PackageTerms
	log     zerolog.Logger
	now     func() time.Time
}

// New creates a new matching Engine.
func New(store storage.Store, l *ledger.Ledger, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Events == nil {
		opts.Events = events.Noop{}
	}
	return &Engine{
		store:   store,
		ledger:  l,
		career:  opts.Career,
		events:  opts.Events,
		workers: opts.Workers,
		root:    opts.RootTerms,
		log:     opts.Logger.With().Str("component", "matching").Logger(),
		now:     opts.Now,
	}
}

// PackageTerms are the bonus parameters of the owner's investment package.
//
// CapAmount limits the matched amount paid in one cycle. A zero CapAmount
// means the package is uncapped, not that nothing is paid; a package that
// should pay no binary bonus sets BinaryPct to zero instead.
type PackageTerms struct {
	BinaryPct decimal.Decimal // bonus percentage of the payable matched amount
	CapAmount decimal.Decimal // max matched amount paid per cycle, zero means uncapped
}

// TermsOf returns the matching terms of a package.
func TermsOf(pkg domain.PackageConfig) PackageTerms {
	return PackageTerms{BinaryPct: pkg.BinaryPct, CapAmount: pkg.CapAmount}
}

// CycleResult is the outcome of one matching cycle on one node.
type CycleResult struct {
	LeftUnmatched  decimal.Decimal
	RightUnmatched decimal.Decimal
	LeftAvailable  decimal.Decimal
	RightAvailable decimal.Decimal
	Matched        decimal.Decimal
	Payable        decimal.Decimal // Matched limited by the package cap
	Bonus          decimal.Decimal
	EarningCapped  bool // bonus cut by the node's lifetime earning cap

	// New node state.
	LeftMatched  decimal.Decimal
	RightMatched decimal.Decimal
	LeftCarry    decimal.Decimal
	RightCarry   decimal.Decimal
}

// Changed reports whether applying the result alters the node.
func (r CycleResult) Changed() bool {
	return r.LeftUnmatched.IsPositive() || r.RightUnmatched.IsPositive() || r.Matched.IsPositive()
}

// ComputeCycle runs the matching arithmetic for n without touching it.
//
// Both sides' unmatched business is absorbed into the matched counters and
// whatever is left of the available amount becomes carry. Carry therefore
// holds the entire unconsumed amount, and a second run without new volume
// finds nothing to match.
func ComputeCycle(n *domain.TreeNode, terms PackageTerms) CycleResult {
	r := CycleResult{
		LeftUnmatched:  n.LeftUnmatched(),
		RightUnmatched: n.RightUnmatched(),
	}
	r.LeftAvailable = n.LeftCarry.Add(r.LeftUnmatched)
	r.RightAvailable = n.RightCarry.Add(r.RightUnmatched)
	r.Matched = domain.MinDecimal(r.LeftAvailable, r.RightAvailable)

	r.Payable = r.Matched
	if terms.CapAmount.IsPositive() {
		r.Payable = domain.MinDecimal(r.Matched, terms.CapAmount)
	}
	r.Bonus = domain.Percent(r.Payable, terms.BinaryPct)

	if n.EarningCap != nil {
		remaining := n.EarningCap.Sub(n.BinaryEarned)
		if !remaining.IsPositive() {
			remaining = decimal.Zero
		}
		if r.Bonus.GreaterThan(remaining) {
			r.Bonus = remaining
			r.EarningCapped = true
		}
	}

	r.LeftMatched = n.LeftMatched.Add(r.LeftUnmatched)
	r.RightMatched = n.RightMatched.Add(r.RightUnmatched)
	r.LeftCarry = r.LeftAvailable.Sub(r.Matched)
	r.RightCarry = r.RightAvailable.Sub(r.Matched)
	return r
}

// Apply writes the result onto n.
func (r CycleResult) Apply(n *domain.TreeNode) {
	n.LeftMatched = r.LeftMatched
	n.RightMatched = r.RightMatched
	n.LeftCarry = r.LeftCarry
	n.RightCarry = r.RightCarry
	n.BinaryEarned = n.BinaryEarned.Add(r.Bonus)
}
