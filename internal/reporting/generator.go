package reporting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/matching"
	"binary-comp-engine/internal/storage"
)

// DefaultPageSize is the number of ledger entries read per page.
const DefaultPageSize = 1000

// Input carries the results of the cycle phases that ran before reporting.
type Input struct {
	CycleID     string
	WindowStart int64 // Unix ms
	WindowEnd   int64 // Unix ms
	Batch       *matching.BatchResult
	Export      ExportSummary
	Errors      []string
}

// Generator produces cycle reports from stored data.
type Generator struct {
	store    storage.Store
	archive  storage.LedgerArchiveStore // optional
	pageSize int
	now      func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(store storage.Store) *Generator {
	return &Generator{
		store:    store,
		pageSize: DefaultPageSize,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithArchive compares window credits with the ledger archive.
func (g *Generator) WithArchive(archive storage.LedgerArchiveStore) *Generator {
	g.archive = archive
	return g
}

// WithPageSize sets the ledger page size.
func (g *Generator) WithPageSize(n int) *Generator {
	if n > 0 {
		g.pageSize = n
	}
	return g
}

// Generate produces a complete cycle report.
func (g *Generator) Generate(ctx context.Context, in Input) (*CycleReport, error) {
	report := &CycleReport{
		CycleID:     in.CycleID,
		GeneratedAt: g.now(),
		WindowStart: in.WindowStart,
		WindowEnd:   in.WindowEnd,
		Export:      in.Export,
		Errors:      append([]string(nil), in.Errors...),
	}

	if in.Batch != nil {
		report.Summary, report.Payouts, report.Skipped = summarizeBatch(in.Batch)
	} else {
		report.Summary.TotalBonus = decimal.Zero
	}

	err := g.store.View(ctx, func(tx storage.Tx) error {
		tags, err := g.tagTotals(ctx, tx.Ledger(), in.WindowStart, in.WindowEnd)
		if err != nil {
			return err
		}
		report.TagTotals = tags

		wallets, err := tx.Wallets().GetAll(ctx)
		if err != nil {
			return fmt.Errorf("load wallets: %w", err)
		}
		report.WalletTotals = walletTotals(wallets)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if g.archive != nil {
		report.Archived, err = g.archiveTotals(ctx, report.TagTotals, in.WindowStart, in.WindowEnd)
		if err != nil {
			return nil, err
		}
	}

	return report, nil
}

// archiveTotals sums archived credits of every tag credited in the window.
// The archive window is inclusive, so the exclusive end is moved back by 1ms.
func (g *Generator) archiveTotals(ctx context.Context, tags []TagTotalRow, start, end int64) ([]ArchiveTotalRow, error) {
	last := int64(math.MaxInt64)
	if end > 0 {
		last = end - 1
	}

	var rows []ArchiveTotalRow
	for _, t := range tags {
		if !t.Credits.IsPositive() {
			continue
		}
		archived, err := g.archive.SumByTag(ctx, t.Tag, start, last)
		if err != nil {
			return nil, fmt.Errorf("sum archived %s: %w", t.Tag, err)
		}
		rows = append(rows, ArchiveTotalRow{Tag: t.Tag, Ledger: t.Credits, Archived: archived})
	}
	return rows, nil
}

// summarizeBatch converts a batch result into report rows.
func summarizeBatch(b *matching.BatchResult) (BatchSummary, []PayoutRow, []SkipRow) {
	summary := BatchSummary{
		Candidates: b.Candidates,
		Processed:  b.Processed,
		Paid:       b.Paid,
		Skipped:    b.SkippedTotal(),
		Failed:     len(b.Errors),
		TotalBonus: b.TotalBonus,
	}

	payouts := make([]PayoutRow, len(b.Payouts))
	for i, p := range b.Payouts {
		payouts[i] = PayoutRow{
			ParticipantID: p.ParticipantID,
			Matched:       p.Matched,
			Payable:       p.Payable,
			Bonus:         p.Bonus,
			LeftCarry:     p.LeftCarry,
			RightCarry:    p.RightCarry,
			EarningCapped: p.EarningCapped,
		}
	}
	sort.Slice(payouts, func(i, j int) bool {
		return payouts[i].ParticipantID < payouts[j].ParticipantID
	})

	skipped := make([]SkipRow, 0, len(b.Skipped))
	for reason, n := range b.Skipped {
		skipped = append(skipped, SkipRow{Reason: reason, Count: n})
	}
	sort.Slice(skipped, func(i, j int) bool {
		return skipped[i].Reason < skipped[j].Reason
	})

	return summary, payouts, skipped
}

// tagTotals pages through the ledger and sums entries created in [start, end).
// An end of zero means no upper bound.
func (g *Generator) tagTotals(ctx context.Context, ledger storage.LedgerEntryStore, start, end int64) ([]TagTotalRow, error) {
	byTag := make(map[string]*TagTotalRow)
	var after int64
	for {
		page, err := ledger.GetAfterSeq(ctx, after, g.pageSize)
		if err != nil {
			return nil, fmt.Errorf("load ledger after seq %d: %w", after, err)
		}
		for _, e := range page {
			after = e.Seq
			if e.CreatedAt < start || (end > 0 && e.CreatedAt >= end) {
				continue
			}
			row, ok := byTag[e.Tag]
			if !ok {
				row = &TagTotalRow{Tag: e.Tag, Credits: decimal.Zero, Debits: decimal.Zero}
				byTag[e.Tag] = row
			}
			row.Entries++
			if e.Direction == domain.DirectionDebit {
				row.Debits = row.Debits.Add(e.Amount)
			} else {
				row.Credits = row.Credits.Add(e.Amount)
			}
		}
		if len(page) < g.pageSize {
			break
		}
	}

	rows := make([]TagTotalRow, 0, len(byTag))
	for _, row := range byTag {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Tag < rows[j].Tag
	})
	return rows, nil
}

// walletTotals sums wallets per purpose. Purposes without wallets are omitted.
func walletTotals(wallets []*domain.Wallet) []WalletTotalRow {
	byPurpose := make(map[domain.Purpose]*WalletTotalRow)
	for _, w := range wallets {
		row, ok := byPurpose[w.Purpose]
		if !ok {
			row = &WalletTotalRow{Purpose: string(w.Purpose), Balance: decimal.Zero, Reserved: decimal.Zero}
			byPurpose[w.Purpose] = row
		}
		row.Wallets++
		row.Balance = row.Balance.Add(w.Balance)
		row.Reserved = row.Reserved.Add(w.Reserved)
	}

	var rows []WalletTotalRow
	for _, p := range domain.Purposes {
		if row, ok := byPurpose[p]; ok {
			rows = append(rows, *row)
		}
	}
	return rows
}
