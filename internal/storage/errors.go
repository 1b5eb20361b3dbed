package storage

import (
	"errors"
	"fmt"

	"binary-comp-engine/internal/domain"
)

// Storage errors shared by every backend.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrReadOnly is returned when a write is attempted inside View.
	ErrReadOnly = errors.New("write in read-only transaction")

	// ErrConflict is returned by versioned updates when the stored version
	// moved since the record was read. It matches domain.ErrConcurrentModification.
	ErrConflict = fmt.Errorf("%w: version mismatch", domain.ErrConcurrentModification)
)
