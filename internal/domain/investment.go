package domain

import "github.com/shopspring/decimal"

// PackageConfig is the investment package configuration supplied by the
// package administration collaborator at the time of investing.
type PackageConfig struct {
	ID          string
	Name        string
	BinaryPct   decimal.Decimal // matching bonus percentage
	CapAmount   decimal.Decimal // max matched amount paid per cycle, zero means uncapped
	ReferralPct decimal.Decimal // immediate sponsor bonus percentage
	RoiPct      decimal.Decimal // informational, paid by the ROI collaborator
	MinAmount   decimal.Decimal // zero means no minimum
}

// InvestmentStatus is the state of an investment.
type InvestmentStatus string

const (
	InvestmentActive    InvestmentStatus = "active"
	InvestmentCompleted InvestmentStatus = "completed"
)

// Investment is one recorded investment, keyed by an external payment reference.
type Investment struct {
	ID            string
	ParticipantID string
	Package       PackageConfig // snapshot at the time of investing
	Amount        decimal.Decimal
	PaymentRef    string // unique
	Status        InvestmentStatus
	CreatedAt     int64 // unix ms
}
