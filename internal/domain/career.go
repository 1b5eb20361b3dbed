package domain

import "github.com/shopspring/decimal"

// CareerLevel is one reward tier. Administered externally, read-only here.
type CareerLevel struct {
	ID        string
	Rank      int // ascending order of evaluation
	Name      string
	Threshold decimal.Decimal // per-leg business volume required
	Reward    decimal.Decimal // one-time reward
	Active    bool
}

// CompletedLevel records a tier that was reached and paid.
type CompletedLevel struct {
	LevelID     string
	Name        string
	CompletedAt int64 // unix ms
	Reward      decimal.Decimal
}

// CareerProgress is a participant's snapshot across career tiers.
type CareerProgress struct {
	ParticipantID       string
	CurrentLevelID      string // empty when every active tier is completed or none exist
	Progress            decimal.Decimal
	TotalBusinessVolume decimal.Decimal
	Completed           []CompletedLevel
	TotalRewards        decimal.Decimal
	Version             int64
	UpdatedAt           int64 // unix ms
}

// NewCareerProgress returns an empty progress record.
func NewCareerProgress(participantID string) *CareerProgress {
	return &CareerProgress{
		ParticipantID:       participantID,
		Progress:            decimal.Zero,
		TotalBusinessVolume: decimal.Zero,
		TotalRewards:        decimal.Zero,
	}
}

// IsCompleted reports whether levelID is in the completed list.
func (p *CareerProgress) IsCompleted(levelID string) bool {
	for _, c := range p.Completed {
		if c.LevelID == levelID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (p *CareerProgress) Clone() *CareerProgress {
	c := *p
	c.Completed = append([]CompletedLevel(nil), p.Completed...)
	return &c
}
