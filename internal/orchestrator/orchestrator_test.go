package orchestrator

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/career"
	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/ledger"
	"binary-comp-engine/internal/matching"
	"binary-comp-engine/internal/storage"
	"binary-comp-engine/internal/storage/memory"
)

var cycleTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return cycleTime }

type testEnv struct {
	store   *memory.Store
	ledger  *ledger.Ledger
	engine  *matching.Engine
	archive *memory.LedgerArchiveStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	l := ledger.New(store, ledger.Options{Logger: zerolog.Nop(), Now: clock})
	return &testEnv{
		store:   store,
		ledger:  l,
		engine:  matching.New(store, l, matching.Options{Workers: 2, Logger: zerolog.Nop(), Now: clock}),
		archive: memory.NewLedgerArchiveStore(),
	}
}

// seed stores a node with business on both legs and an active investment.
func (e *testEnv) seed(t *testing.T, id string, left, right, pct int64) {
	t.Helper()
	ctx := context.Background()
	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.Participants().Insert(ctx, &domain.Participant{ID: id, Code: "C-" + id, Status: domain.StatusActive}); err != nil {
			return err
		}
		n := domain.NewTreeNode(id, domain.NodeKindBinary)
		n.LeftBusiness = decimal.NewFromInt(left)
		n.RightBusiness = decimal.NewFromInt(right)
		if err := tx.Tree().Insert(ctx, n); err != nil {
			return err
		}
		return tx.Investments().Insert(ctx, &domain.Investment{
			ID:            "inv-" + id,
			ParticipantID: id,
			Package:       domain.PackageConfig{ID: "pkg", BinaryPct: decimal.NewFromInt(pct), CapAmount: decimal.NewFromInt(1000)},
			Amount:        decimal.NewFromInt(100),
			PaymentRef:    "pay-" + id,
			Status:        domain.InvestmentActive,
		})
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func (e *testEnv) orchestrator(archive storage.LedgerArchiveStore, outputDir string) *Orchestrator {
	return New(Options{
		Store:       e.store,
		Matching:    e.engine,
		Archive:     archive,
		ExportBatch: 1,
		OutputDir:   outputDir,
		Logger:      zerolog.Nop(),
		Now:         clock,
	})
}

func TestCycleID(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	got := CycleID(time.Date(2026, 3, 2, 1, 0, 0, 0, loc))
	if got != "2026-03-01" {
		t.Errorf("CycleID = %s, want 2026-03-01", got)
	}
}

func TestRunDailyCycle_EmptyTree(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.orchestrator(env.archive, "").RunDailyCycle(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.CycleID != "2026-03-02" {
		t.Errorf("cycle id = %s", result.CycleID)
	}
	if result.Batch.Candidates != 0 || result.Export.Entries != 0 {
		t.Errorf("expected nothing to do, got batch %+v export %+v", result.Batch, result.Export)
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %v", result.Errors)
	}
	if result.Report == nil {
		t.Fatal("expected a report")
	}
	if !result.Career.Skipped {
		t.Error("career phase should be skipped without a career engine")
	}
}

func TestRunDailyCycle_PaysExportsAndReports(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "a", 300, 200, 10)
	env.seed(t, "b", 100, 100, 5)
	dir := t.TempDir()

	result, err := env.orchestrator(env.archive, dir).RunDailyCycle(context.Background())
	if err != nil {
		t.Fatalf("RunDailyCycle failed: %v", err)
	}

	// a: 200 * 10% = 20; b: 100 * 5% = 5.
	if result.Batch.Paid != 2 || !result.Batch.TotalBonus.Equal(decimal.NewFromInt(25)) {
		t.Errorf("unexpected batch: paid=%d total=%s", result.Batch.Paid, result.Batch.TotalBonus)
	}

	// ExportBatch 1 exports one entry per page.
	if result.Export.Entries != 2 || result.Export.FromSeq != 0 || result.Export.ToSeq != 2 {
		t.Errorf("unexpected export: %+v", result.Export)
	}
	if env.archive.Len() != 2 {
		t.Errorf("archive holds %d entries, want 2", env.archive.Len())
	}

	if len(result.Report.TagTotals) != 1 || result.Report.TagTotals[0].Tag != domain.TagMatchingBonus {
		t.Errorf("unexpected tag totals: %+v", result.Report.TagTotals)
	}
	// The report runs after the export, so the archive holds every credit.
	if len(result.Report.Archived) != 1 || !result.Report.Archived[0].Archived.Equal(decimal.NewFromInt(25)) ||
		!result.Report.Archived[0].Missing().IsZero() {
		t.Errorf("unexpected archive totals: %+v", result.Report.Archived)
	}

	if len(result.ReportFiles) != 2 {
		t.Fatalf("expected 2 report files, got %v", result.ReportFiles)
	}
	md, err := os.ReadFile(result.ReportFiles[0])
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(md), "# Daily Cycle Report 2026-03-02") {
		t.Error("markdown report missing header")
	}
	csv, err := os.ReadFile(result.ReportFiles[1])
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !strings.Contains(string(csv), "2026-03-02,a,200,200,20,100,0,false") {
		t.Errorf("csv missing payout row:\n%s", csv)
	}
}

func TestRunDailyCycle_RerunIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "a", 300, 200, 10)
	orch := env.orchestrator(env.archive, "")

	if _, err := orch.RunDailyCycle(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	result, err := orch.RunDailyCycle(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if result.Batch.Paid != 0 {
		t.Errorf("second run paid %d nodes", result.Batch.Paid)
	}
	if result.Export.Entries != 0 || result.Export.FromSeq != 1 {
		t.Errorf("second run should export nothing: %+v", result.Export)
	}
	if env.archive.Len() != 1 {
		t.Errorf("archive holds %d entries, want 1", env.archive.Len())
	}
}

func TestRunDailyCycle_NoArchive(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "a", 300, 200, 10)

	result, err := env.orchestrator(nil, "").RunDailyCycle(context.Background())
	if err != nil {
		t.Fatalf("RunDailyCycle failed: %v", err)
	}
	if !result.Export.Skipped {
		t.Error("export should be skipped without an archive")
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %v", result.Errors)
	}
}

var errArchiveDown = errors.New("archive down")

type failingArchive struct {
	*memory.LedgerArchiveStore
}

func (failingArchive) InsertBulk(context.Context, []*domain.LedgerEntry) error {
	return errArchiveDown
}

func TestRunDailyCycle_ExportErrorIsCollected(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "a", 300, 200, 10)

	result, err := env.orchestrator(failingArchive{memory.NewLedgerArchiveStore()}, "").RunDailyCycle(context.Background())
	if err != nil {
		t.Fatalf("export failure should not fail the cycle: %v", err)
	}
	if result.Batch.Paid != 1 {
		t.Errorf("matching should still pay, got %d", result.Batch.Paid)
	}
	if len(result.Errors) != 1 || !strings.HasPrefix(result.Errors[0], "export:") {
		t.Errorf("expected one export error, got %v", result.Errors)
	}
	if result.Report == nil || len(result.Report.Errors) != 1 {
		t.Error("report should carry the export error")
	}

	// Progress is not advanced, so a healthy archive picks the entry up.
	next, err := env.orchestrator(env.archive, "").RunDailyCycle(context.Background())
	if err != nil {
		t.Fatalf("retry run failed: %v", err)
	}
	if next.Export.Entries != 1 {
		t.Errorf("expected the pending entry to be exported, got %+v", next.Export)
	}
}

func TestRunDailyCycle_ContextCanceled(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "a", 300, 200, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.orchestrator(env.archive, "").RunDailyCycle(ctx)
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
}

type unavailableCareer struct{}

func (unavailableCareer) Evaluate(context.Context, string) (*domain.CareerProgress, error) {
	return nil, errors.New("career store unavailable")
}

func (e *testEnv) careerBalance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	w, err := e.ledger.Wallet(context.Background(), id, domain.PurposeCareerReward)
	if err != nil {
		t.Fatalf("career wallet %s: %v", id, err)
	}
	return w.Balance
}

func TestRunDailyCycle_PaysCareerRewardMissedAtVolumePost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.store.InTx(ctx, func(tx storage.Tx) error {
		bronze := &domain.CareerLevel{
			ID:        "bronze",
			Rank:      1,
			Name:      "Bronze",
			Threshold: decimal.NewFromInt(1000),
			Reward:    decimal.NewFromInt(200),
			Active:    true,
		}
		if err := tx.CareerLevels().Upsert(ctx, bronze); err != nil {
			return err
		}
		if err := tx.Participants().Insert(ctx, &domain.Participant{ID: "p1", Code: "P1", Status: domain.StatusActive}); err != nil {
			return err
		}
		return tx.Tree().Insert(ctx, domain.NewTreeNode("p1", domain.NodeKindRoot))
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Evaluation fails on every post, so the tier is reached but not paid.
	posting := matching.New(env.store, env.ledger, matching.Options{Career: unavailableCareer{}, Logger: zerolog.Nop(), Now: clock})
	for _, leg := range []domain.Leg{domain.LegLeft, domain.LegRight} {
		if _, err := posting.PostVolume(ctx, "p1", decimal.NewFromInt(1000), leg); err != nil {
			t.Fatalf("PostVolume %s: %v", leg, err)
		}
	}
	if bal := env.careerBalance(t, "p1"); !bal.IsZero() {
		t.Fatalf("reward paid before the cycle: %s", bal)
	}

	orch := New(Options{
		Store:    env.store,
		Matching: env.engine,
		Career:   career.New(env.store, env.ledger, career.Options{Logger: zerolog.Nop(), Now: clock}),
		Archive:  env.archive,
		Logger:   zerolog.Nop(),
		Now:      clock,
	})

	result, err := orch.RunDailyCycle(ctx)
	if err != nil {
		t.Fatalf("RunDailyCycle failed: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %v", result.Errors)
	}
	if result.Career.Skipped || result.Career.Evaluated != 1 || result.Career.Failed != 0 {
		t.Errorf("unexpected career summary: %+v", result.Career)
	}
	if bal := env.careerBalance(t, "p1"); !bal.Equal(decimal.NewFromInt(200)) {
		t.Errorf("career reward after daily cycle: got %s, want 200", bal)
	}
	// The reward entry is written before the export phase.
	if result.Export.Entries != 1 {
		t.Errorf("expected the reward entry to be exported, got %+v", result.Export)
	}

	again, err := orch.RunDailyCycle(ctx)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if again.Career.Evaluated != 1 {
		t.Errorf("second run evaluated %d nodes", again.Career.Evaluated)
	}
	if bal := env.careerBalance(t, "p1"); !bal.Equal(decimal.NewFromInt(200)) {
		t.Errorf("reward paid twice: %s", bal)
	}
}
