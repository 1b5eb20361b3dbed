// Package events describes the notifications emitted after state changes.
// Delivery is best effort: a failed publish never rolls back the change.
package events

import (
	"context"
	"sync"
)

// Type identifies an event.
type Type string

const (
	TypeInvestmentCreated  Type = "investment.created"
	TypeMatchingPaid       Type = "matching.paid"
	TypeCareerRewarded     Type = "career.rewarded"
	TypeWithdrawalRequest  Type = "withdrawal.requested"
	TypeWithdrawalApproved Type = "withdrawal.approved"
	TypeWithdrawalRejected Type = "withdrawal.rejected"
)

// Event is one notification about a participant.
type Event struct {
	Type          Type
	ParticipantID string
	Fields        map[string]string // flat payload, e.g. amount, cycle, level
	OccurredAt    int64             // unix ms
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop discards every event.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Verify interface compliance at compile time.
var (
	_ Publisher = Noop{}
	_ Publisher = (*Recorder)(nil)
)
