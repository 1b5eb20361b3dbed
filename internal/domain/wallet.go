package domain

import "github.com/shopspring/decimal"

// Purpose is a mutually exclusive monetary pool of a participant.
type Purpose string

const (
	PurposeWithdrawal    Purpose = "withdrawal"
	PurposeMatchingBonus Purpose = "matching_bonus"
	PurposeCareerReward  Purpose = "career_reward"
	PurposeInvestment    Purpose = "investment"
	PurposeReferral      Purpose = "referral"
	PurposeROI           Purpose = "roi"
)

// Purposes lists every wallet purpose in display order.
var Purposes = []Purpose{
	PurposeWithdrawal,
	PurposeMatchingBonus,
	PurposeCareerReward,
	PurposeInvestment,
	PurposeReferral,
	PurposeROI,
}

// IsValid checks if the purpose is a known value.
func (p Purpose) IsValid() bool {
	for _, v := range Purposes {
		if p == v {
			return true
		}
	}
	return false
}

// Wallet is one (participant, purpose) balance.
type Wallet struct {
	ParticipantID string
	Purpose       Purpose
	Balance       decimal.Decimal // usable amount, >= 0
	Reserved      decimal.Decimal // earmarked, <= Balance
	Currency      string
	Version       int64
	CreatedAt     int64 // unix ms
	UpdatedAt     int64 // unix ms
}

// NewWallet returns an empty wallet.
func NewWallet(participantID string, purpose Purpose, currency string) *Wallet {
	return &Wallet{
		ParticipantID: participantID,
		Purpose:       purpose,
		Balance:       decimal.Zero,
		Reserved:      decimal.Zero,
		Currency:      currency,
	}
}

// Available is the balance not earmarked by a reservation.
func (w *Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.Reserved)
}

// Direction of a ledger entry.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// EntryStatusCompleted is the only status the engine writes.
const EntryStatusCompleted = "completed"

// Ledger entry tags.
const (
	TagMatchingBonus = "matching_bonus"
	TagCareerReward  = "career_reward"
	TagInvestment    = "investment"
	TagReferral      = "referral_bonus"
	TagWithdrawal    = "withdrawal"
)

// LedgerEntry is one immutable wallet mutation.
type LedgerEntry struct {
	ID            string // uuid
	Seq           int64  // global creation order, assigned by the store
	ParticipantID string
	Purpose       Purpose
	Direction     Direction
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Status        string
	Reference     string // optional external reference
	Tag           string // reason, e.g. "matching_bonus"
	Meta          map[string]string
	CreatedAt     int64 // unix ms
}

// Signed returns the amount with the sign of its direction.
func (e *LedgerEntry) Signed() decimal.Decimal {
	if e.Direction == DirectionDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// Clone returns a deep copy.
func (e *LedgerEntry) Clone() *LedgerEntry {
	c := *e
	if e.Meta != nil {
		c.Meta = make(map[string]string, len(e.Meta))
		for k, v := range e.Meta {
			c.Meta[k] = v
		}
	}
	return &c
}

// WithdrawalStatus is the state of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

// Withdrawal is a request holding funds in reserve until decided.
type Withdrawal struct {
	ID            string
	ParticipantID string
	Purpose       Purpose
	Amount        decimal.Decimal
	Status        WithdrawalStatus
	CreatedAt     int64 // unix ms
	DecidedAt     int64 // unix ms, 0 while pending
}
