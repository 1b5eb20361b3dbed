// Package orchestrator runs the daily compensation cycle.
// It coordinates: matching batch → career catch-up → ledger archive export → cycle report
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"binary-comp-engine/internal/career"
	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/matching"
	"binary-comp-engine/internal/observability"
	"binary-comp-engine/internal/reporting"
	"binary-comp-engine/internal/storage"
)

// Defaults.
const (
	DefaultExporter    = "ledger_archive"
	DefaultExportBatch = 500
	CycleIDLayout      = "2006-01-02"
)

// Phase names used in logs and metrics.
const (
	PhaseMatching = "matching"
	PhaseCareer   = "career"
	PhaseExport   = "export"
	PhaseReport   = "report"
)

// Orchestrator coordinates the daily cycle execution.
// Flow: matching batch → career catch-up → archive export → report
type Orchestrator struct {
	store    storage.Store
	matching *matching.Engine
	career   *career.Engine
	archive  storage.LedgerArchiveStore
	reports  *reporting.Generator

	exporter    string
	exportBatch int
	outputDir   string

	log zerolog.Logger
	now func() time.Time
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	Store    storage.Store
	Matching *matching.Engine

	// Optional career engine; nodes with business are re-evaluated when set
	Career *career.Engine

	// Optional archive; export is skipped when nil
	Archive     storage.LedgerArchiveStore
	Exporter    string // export progress key
	ExportBatch int

	// Report files are written here when set
	OutputDir string

	Logger zerolog.Logger
	Now    func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Exporter == "" {
		opts.Exporter = DefaultExporter
	}
	if opts.ExportBatch <= 0 {
		opts.ExportBatch = DefaultExportBatch
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		store:       opts.Store,
		matching:    opts.Matching,
		career:      opts.Career,
		archive:     opts.Archive,
		reports:     reporting.NewGenerator(opts.Store).WithArchive(opts.Archive).WithClock(func() time.Time { return opts.Now().UTC() }),
		exporter:    opts.Exporter,
		exportBatch: opts.ExportBatch,
		outputDir:   opts.OutputDir,
		log:         opts.Logger.With().Str("component", "orchestrator").Logger(),
		now:         opts.Now,
	}
}

// RunResult contains results from one daily cycle.
type RunResult struct {
	CycleID     string
	Batch       *matching.BatchResult
	Career      CareerSummary
	Export      reporting.ExportSummary
	Report      *reporting.CycleReport
	ReportFiles []string
	Errors      []string
}

// CareerSummary counts the career evaluations of one cycle.
type CareerSummary struct {
	Evaluated int
	Failed    int
	Skipped   bool // no career engine configured
}

// CycleID returns the cycle identifier of the UTC day containing t.
func CycleID(t time.Time) string {
	return t.UTC().Format(CycleIDLayout)
}

// RunDailyCycle executes the daily cycle.
// Phases:
//  1. Matching batch over every node with unmatched business (fatal on error)
//  2. Career evaluation of every node with business, which pays tiers whose
//     evaluation failed after an earlier volume post
//  3. Export new ledger entries to the archive
//  4. Build and optionally write the cycle report
//
// Per-node matching and career failures and errors of phases 3 and 4 are
// collected in the result. Re-running the same day is safe: matching only pays new
// volume and export resumes from the last exported seq.
func (o *Orchestrator) RunDailyCycle(ctx context.Context) (*RunResult, error) {
	now := o.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	result := &RunResult{CycleID: CycleID(now)}

	log := o.log.With().Str("cycle", result.CycleID).Logger()
	log.Info().Msg("daily cycle started")

	// Phase 1: Matching
	log.Info().Msg("phase 1: matching batch")
	started := time.Now()
	batch, err := o.matching.RunBatch(ctx, result.CycleID)
	o.recordPhase(PhaseMatching, started, err)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (matching) failed: %w", err)
	}
	result.Batch = batch
	for _, nodeErr := range batch.Errors {
		result.Errors = append(result.Errors, fmt.Sprintf("matching %s", nodeErr.Error()))
	}
	log.Info().
		Int("candidates", batch.Candidates).
		Int("paid", batch.Paid).
		Str("total_bonus", batch.TotalBonus.String()).
		Int("errors", len(batch.Errors)).
		Msg("phase 1 done")

	// Phase 2: Career
	log.Info().Msg("phase 2: career evaluation")
	started = time.Now()
	careerSummary, careerErrs, err := o.evaluateCareers(ctx)
	o.recordPhase(PhaseCareer, started, err)
	result.Career = careerSummary
	result.Errors = append(result.Errors, careerErrs...)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("career: %v", err))
		log.Error().Err(err).Msg("phase 2 failed")
	} else {
		log.Info().
			Int("evaluated", careerSummary.Evaluated).
			Int("failed", careerSummary.Failed).
			Msg("phase 2 done")
	}

	// Phase 3: Archive export
	log.Info().Msg("phase 3: ledger archive export")
	started = time.Now()
	export, err := o.exportLedger(ctx)
	o.recordPhase(PhaseExport, started, err)
	result.Export = export
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("export: %v", err))
		log.Error().Err(err).Msg("phase 3 failed")
	} else {
		log.Info().Int("entries", export.Entries).Int64("to_seq", export.ToSeq).Msg("phase 3 done")
	}

	// Phase 4: Report
	log.Info().Msg("phase 4: cycle report")
	started = time.Now()
	report, files, err := o.buildReport(ctx, reporting.Input{
		CycleID:     result.CycleID,
		WindowStart: dayStart.UnixMilli(),
		WindowEnd:   dayStart.Add(24 * time.Hour).UnixMilli(),
		Batch:       batch,
		Export:      export,
		Errors:      result.Errors,
	})
	o.recordPhase(PhaseReport, started, err)
	result.Report = report
	result.ReportFiles = files
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("report: %v", err))
		log.Error().Err(err).Msg("phase 4 failed")
	}

	if len(result.Errors) == 0 {
		observability.RecordCycleSuccess(now.Unix())
	}
	log.Info().
		Int("paid", batch.Paid).
		Int("exported", export.Entries).
		Int("errors", len(result.Errors)).
		Msg("daily cycle completed")

	return result, nil
}

// evaluateCareers re-evaluates every node with business. Evaluation is
// idempotent, so nodes already up to date are left unchanged. The returned
// error is set only when the nodes cannot be read; per-node failures are
// returned as messages.
func (o *Orchestrator) evaluateCareers(ctx context.Context) (CareerSummary, []string, error) {
	if o.career == nil {
		return CareerSummary{Skipped: true}, nil, nil
	}

	var ids []string
	err := o.store.View(ctx, func(tx storage.Tx) error {
		nodes, err := tx.Tree().GetAll(ctx)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			if n.TotalBusiness().IsPositive() {
				ids = append(ids, n.ParticipantID)
			}
		}
		return nil
	})
	if err != nil {
		return CareerSummary{}, nil, fmt.Errorf("load nodes: %w", err)
	}

	progress, failures := o.career.EvaluateMany(ctx, ids)
	summary := CareerSummary{Evaluated: len(progress), Failed: len(failures)}

	var errs []string
	for _, f := range failures {
		errs = append(errs, fmt.Sprintf("career %s: %v", f.ParticipantID, f.Err))
	}
	return summary, errs, nil
}

// exportLedger copies ledger entries after the last exported seq to the
// archive in batches, advancing the progress after each batch.
func (o *Orchestrator) exportLedger(ctx context.Context) (reporting.ExportSummary, error) {
	summary := reporting.ExportSummary{Exporter: o.exporter}
	if o.archive == nil {
		summary.Skipped = true
		return summary, nil
	}

	err := o.store.View(ctx, func(tx storage.Tx) error {
		var err error
		summary.FromSeq, err = tx.ExportProgress().GetLastExported(ctx, o.exporter)
		return err
	})
	if err != nil {
		return summary, fmt.Errorf("load export progress: %w", err)
	}
	summary.ToSeq = summary.FromSeq

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		entries, err := o.loadPage(ctx, summary.ToSeq)
		if err != nil {
			return summary, err
		}
		if len(entries) == 0 {
			return summary, nil
		}

		if err := o.archive.InsertBulk(ctx, entries); err != nil {
			return summary, fmt.Errorf("archive entries after seq %d: %w", summary.ToSeq, err)
		}

		last := entries[len(entries)-1].Seq
		err = o.store.InTx(ctx, func(tx storage.Tx) error {
			return tx.ExportProgress().SetLastExported(ctx, o.exporter, last)
		})
		if err != nil {
			return summary, fmt.Errorf("save export progress %d: %w", last, err)
		}
		summary.ToSeq = last
		summary.Entries += len(entries)

		if len(entries) < o.exportBatch {
			return summary, nil
		}
	}
}

func (o *Orchestrator) loadPage(ctx context.Context, afterSeq int64) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	err := o.store.View(ctx, func(tx storage.Tx) error {
		var err error
		entries, err = tx.Ledger().GetAfterSeq(ctx, afterSeq, o.exportBatch)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load ledger after seq %d: %w", afterSeq, err)
	}
	return entries, nil
}

// buildReport generates the cycle report and writes it to the output
// directory when one is configured.
func (o *Orchestrator) buildReport(ctx context.Context, in reporting.Input) (*reporting.CycleReport, []string, error) {
	report, err := o.reports.Generate(ctx, in)
	if err != nil {
		return nil, nil, fmt.Errorf("generate: %w", err)
	}
	if o.outputDir == "" {
		return report, nil, nil
	}

	if err := os.MkdirAll(o.outputDir, 0o755); err != nil {
		return report, nil, fmt.Errorf("create output dir: %w", err)
	}

	outputs := []struct {
		name string
		body string
	}{
		{name: fmt.Sprintf("cycle_%s.md", in.CycleID), body: reporting.RenderMarkdown(report)},
		{name: fmt.Sprintf("payouts_%s.csv", in.CycleID), body: reporting.RenderCSV(report)},
	}

	var files []string
	for _, out := range outputs {
		path := filepath.Join(o.outputDir, out.name)
		if err := os.WriteFile(path, []byte(out.body), 0o644); err != nil {
			return report, files, fmt.Errorf("write %s: %w", out.name, err)
		}
		files = append(files, path)
	}
	return report, files, nil
}

func (o *Orchestrator) recordPhase(phase string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordCyclePhase(phase, status, time.Since(started).Seconds())
}
