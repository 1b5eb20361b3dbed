package domain

// Status is the lifecycle state of a participant. Participants are never
// removed; they only move between these states.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusBlocked   Status = "blocked"
)

// IsValid checks if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusBlocked:
		return true
	}
	return false
}

// Participant is a member of the referral network.
type Participant struct {
	ID        string // uuid
	Code      string // human-readable business code, unique
	SponsorID string // referrer; empty for the root
	Leg       Leg    // requested leg at signup (may be empty)
	Status    Status
	CreatedAt int64 // unix ms
	UpdatedAt int64 // unix ms
}

// IsActive reports whether the participant may sponsor new members.
func (p *Participant) IsActive() bool {
	return p.Status == StatusActive
}
