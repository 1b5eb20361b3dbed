package domain

import (
	"errors"
	"fmt"
)

// Engine errors. Every one of them is returned before any state is mutated.
var (
	// ErrInvalidAmount is returned for non-positive or malformed monetary input.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidPurpose is returned for an unknown wallet purpose.
	ErrInvalidPurpose = errors.New("invalid wallet purpose")

	// ErrInvalidLeg is returned for a leg other than left, right or none.
	ErrInvalidLeg = errors.New("invalid leg")

	// ErrSlotOccupied is returned when an explicit sponsor+leg has no free slot.
	ErrSlotOccupied = errors.New("slot occupied")

	// ErrNoAvailableSlot is returned when spillover exhausts a leg.
	// It matches ErrSlotOccupied under errors.Is.
	ErrNoAvailableSlot = fmt.Errorf("%w: no available slot along leg", ErrSlotOccupied)

	// ErrSponsorNotFound is returned when the sponsor is unknown or not active.
	ErrSponsorNotFound = errors.New("sponsor not found")

	// ErrParticipantNotFound is returned when a participant has no record or tree node.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrAlreadyPlaced is returned when a participant already has a tree node.
	ErrAlreadyPlaced = errors.New("participant already placed")

	// ErrRootExists is returned when a second root placement is attempted.
	ErrRootExists = errors.New("root already exists")

	// ErrTreeCycle is a fatal data-integrity error: a walk revisited a node.
	ErrTreeCycle = errors.New("tree cycle detected")

	// ErrInsufficientBalance is returned when a debit or reserve exceeds free funds.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientReserve is returned when a release exceeds reserved funds.
	ErrInsufficientReserve = errors.New("insufficient reserve")

	// ErrConcurrentModification is an optimistic-lock conflict.
	// Callers retry the whole operation from a fresh read.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrDuplicatePayment is returned when an external payment reference was already used.
	ErrDuplicatePayment = errors.New("duplicate payment reference")

	// ErrWithdrawalState is returned when a withdrawal is no longer pending.
	ErrWithdrawalState = errors.New("withdrawal is not pending")
)
