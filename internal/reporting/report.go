package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleReport represents the outcome of one daily cycle.
type CycleReport struct {
	// Metadata
	CycleID     string
	GeneratedAt time.Time
	WindowStart int64 // Unix ms, inclusive
	WindowEnd   int64 // Unix ms, exclusive

	// Matching batch
	Summary BatchSummary
	Payouts []PayoutRow // sorted by participant_id
	Skipped []SkipRow   // sorted by reason

	// Ledger activity inside the window, sorted by tag
	TagTotals []TagTotalRow

	// Wallet balances at generation time, in domain.Purposes order
	WalletTotals []WalletTotalRow

	// Archive export
	Export ExportSummary

	// Window credits per tag in the ledger and in the archive, sorted by
	// tag. Empty without an archive.
	Archived []ArchiveTotalRow

	// Errors collected across phases
	Errors []string
}

// BatchSummary contains the matching batch counters.
type BatchSummary struct {
	Candidates int
	Processed  int
	Paid       int
	Skipped    int
	Failed     int
	TotalBonus decimal.Decimal
}

// PayoutRow represents one matching payout.
type PayoutRow struct {
	ParticipantID string
	Matched       decimal.Decimal
	Payable       decimal.Decimal
	Bonus         decimal.Decimal
	LeftCarry     decimal.Decimal
	RightCarry    decimal.Decimal
	EarningCapped bool
}

// SkipRow counts nodes skipped for one reason.
type SkipRow struct {
	Reason string
	Count  int
}

// TagTotalRow sums ledger entries with one tag.
type TagTotalRow struct {
	Tag     string
	Entries int
	Credits decimal.Decimal
	Debits  decimal.Decimal
}

// WalletTotalRow sums wallets of one purpose.
type WalletTotalRow struct {
	Purpose  string
	Wallets  int
	Balance  decimal.Decimal
	Reserved decimal.Decimal
}

// ArchiveTotalRow compares the credits of one tag in the ledger and in
// the archive.
type ArchiveTotalRow struct {
	Tag      string
	Ledger   decimal.Decimal
	Archived decimal.Decimal
}

// Missing returns the ledger credits not yet in the archive.
func (r ArchiveTotalRow) Missing() decimal.Decimal {
	return r.Ledger.Sub(r.Archived)
}

// ExportSummary describes the ledger archive export.
type ExportSummary struct {
	Exporter string
	FromSeq  int64 // last exported seq before the run
	ToSeq    int64 // last exported seq after the run
	Entries  int
	Skipped  bool // no archive configured
}
