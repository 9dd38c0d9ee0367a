// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrStaleWrite indicates a conditional update found the row in a different
	// state than the caller read.
	ErrStaleWrite = errors.New("stale write")

	// ErrDuplicateKey indicates a uniqueness constraint rejected the write.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrNotFound indicates the row a write targets does not exist.
	ErrNotFound = errors.New("record not found")
)

// EntityError wraps persistence errors with the entity they concern.
type EntityError struct {
	Op     string // Operation being performed (e.g., "Update", "Save")
	Entity string // Entity kind (e.g., "step", "form_response")
	ID     string // Entity ID if applicable
	Err    error  // Underlying error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for entity errors.
func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEntityError creates a new entity error with context.
func NewEntityError(op, entity, id string, err error) *EntityError {
	return &EntityError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}

// IsStaleWrite checks if an error indicates a lost optimistic concurrency race.
func IsStaleWrite(err error) bool {
	return errors.Is(err, ErrStaleWrite)
}

// IsDuplicateKey checks if an error indicates a uniqueness violation.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsNotFound checks if an error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
