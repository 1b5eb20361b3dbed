package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/observability"
	"binary-comp-engine/internal/storage"
)

// Skip reasons.
const (
	SkipBlocked   = "blocked"
	SkipNoPackage = "no_active_investment"
)

// NodeError is a failed matching job.
type NodeError struct {
	ParticipantID string
	Err           error
}

func (e NodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.ParticipantID, e.Err)
}

// BatchResult summarizes one RunBatch call.
type BatchResult struct {
	CycleID    string
	Candidates int // nodes with unmatched business
	Processed  int // jobs that ran without error
	Paid       int // jobs that credited a bonus
	Skipped    map[string]int
	TotalBonus decimal.Decimal
	Payouts    []Payout // ordered by participant id
	Errors     []NodeError
}

// SkippedTotal returns the number of skipped nodes across reasons.
func (r *BatchResult) SkippedTotal() int {
	total := 0
	for _, n := range r.Skipped {
		total += n
	}
	return total
}

type job struct {
	participantID string
	terms         PackageTerms
}

// RunBatch runs the matching cycle for every node with unmatched business.
// Each node's terms come from its owner's latest active investment. A root
// without one uses the configured root terms; other owners without one and
// blocked owners are skipped. Nodes run in parallel, one
// job per node, so writes to a single node never overlap. Per-node failures
// are collected in the result and do not stop the batch.
func (e *Engine) RunBatch(ctx context.Context, cycleID string) (*BatchResult, error) {
	result := &BatchResult{
		CycleID:    cycleID,
		Skipped:    make(map[string]int),
		TotalBonus: decimal.Zero,
	}

	jobs, err := e.collectJobs(ctx, result)
	if err != nil {
		return nil, err
	}
	observability.RecordMatchingBatch(result.Candidates)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, j := range jobs {
		j := j
		g.Go(func() error {
			payout, err := e.RunMatchingCycle(gctx, j.participantID, j.terms, cycleID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, NodeError{ParticipantID: j.participantID, Err: err})
				return nil
			}
			result.Processed++
			if payout != nil {
				result.Payouts = append(result.Payouts, *payout)
				if payout.Bonus.IsPositive() {
					result.Paid++
					result.TotalBonus = result.TotalBonus.Add(payout.Bonus)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Payouts, func(i, j int) bool {
		return result.Payouts[i].ParticipantID < result.Payouts[j].ParticipantID
	})
	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].ParticipantID < result.Errors[j].ParticipantID
	})

	e.log.Info().
		Str("cycle_id", cycleID).
		Int("candidates", result.Candidates).
		Int("processed", result.Processed).
		Int("paid", result.Paid).
		Int("skipped", result.SkippedTotal()).
		Int("errors", len(result.Errors)).
		Str("total_bonus", result.TotalBonus.String()).
		Msg("matching batch completed")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// collectJobs reads the candidate nodes and their owners' terms from one snapshot.
func (e *Engine) collectJobs(ctx context.Context, result *BatchResult) ([]job, error) {
	var jobs []job
	err := e.store.View(ctx, func(tx storage.Tx) error {
		nodes, err := tx.Tree().GetWithUnmatched(ctx)
		if err != nil {
			return fmt.Errorf("get nodes with unmatched business: %w", err)
		}
		result.Candidates = len(nodes)

		for _, n := range nodes {
			p, err := tx.Participants().GetByID(ctx, n.ParticipantID)
			if err != nil {
				return fmt.Errorf("get participant %s: %w", n.ParticipantID, err)
			}
			if p.Status == domain.StatusBlocked {
				result.Skipped[SkipBlocked]++
				continue
			}

			inv, err := tx.Investments().GetLatestActive(ctx, n.ParticipantID)
			if errors.Is(err, storage.ErrNotFound) {
				if n.IsRoot() && e.root != nil {
					jobs = append(jobs, job{participantID: n.ParticipantID, terms: *e.root})
					continue
				}
				result.Skipped[SkipNoPackage]++
				continue
			}
			if err != nil {
				return fmt.Errorf("get investment of %s: %w", n.ParticipantID, err)
			}

			jobs = append(jobs, job{participantID: n.ParticipantID, terms: TermsOf(inv.Package)})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect matching jobs: %w", err)
	}
	return jobs, nil
}
