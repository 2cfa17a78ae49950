// Package shared contains the error taxonomy and domain events used by every
// engine package. It has no dependencies outside the standard library and uuid.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds, matched with errors.Is().
var (
	// ErrValidationInput: malformed identifiers or arguments supplied by a caller.
	ErrValidationInput = errors.New("invalid input")

	// ErrStorage: a read or write failed in a collaborator (database, cache, resolver).
	ErrStorage = errors.New("storage failure")

	// ErrComputation: activity data could not be turned into a metric value.
	ErrComputation = errors.New("computation failure")

	ErrNotFound     = errors.New("entity not found")
	ErrInvalidState = errors.New("invalid state")
	ErrTimeout      = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "achievement", "streak", "statistics"
	Op      string // operation that failed, e.g. "ValidateOne"
	Kind    error  // base kind for errors.Is()
	Message string
	Err     error // underlying cause, optional
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the cause, or the kind when there is none.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches both the kind and the wrapped cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// NewValidationInputError reports a malformed argument.
func NewValidationInputError(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrValidationInput, message)
}

// NewStorageError wraps a collaborator failure. A nil err yields nil.
func NewStorageError(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) && errors.Is(de.Kind, ErrStorage) {
		return err
	}
	return WrapError(domain, op, ErrStorage, "storage call failed", err)
}

// NewComputationError reports malformed snapshot data.
func NewComputationError(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrComputation, message)
}

// Predefined errors.
var (
	ErrEmptyUserID        = NewValidationInputError("engine", "Validate", "user id is required")
	ErrEmptyAchievementID = NewValidationInputError("achievement", "Validate", "achievement id is required")
	ErrUnknownAchievement = NewDomainError("achievement", "Find", ErrNotFound, "achievement is not in the catalog")
	ErrDailyGoalTooLow    = NewValidationInputError("streak", "UpdateDailyGoal", "daily goal must be at least 3")
	ErrNilSnapshot        = NewComputationError("achievement", "Calculate", "activity snapshot is nil")
	ErrUnknownMetric      = NewComputationError("achievement", "Calculate", "no calculator for metric type")
	ErrNegativeSubtasks   = NewComputationError("achievement", "Calculate", "negative subtask count")
	ErrConcurrentUpdate   = NewDomainError("streak", "Upsert", ErrInvalidState, "streak row changed concurrently")
)

// IsValidationInput reports whether err is a caller input error.
func IsValidationInput(err error) bool { return errors.Is(err, ErrValidationInput) }

// IsStorage reports whether err came from a storage collaborator.
func IsStorage(err error) bool { return errors.Is(err, ErrStorage) }

// IsComputation reports whether err came from a metric calculator.
func IsComputation(err error) bool { return errors.Is(err, ErrComputation) }

// IsNotFound reports whether err is a "not found" error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether a guarded write lost a race.
func IsConflict(err error) bool { return errors.Is(err, ErrConcurrentUpdate) }

// IsRetryable reports whether the failed operation can be retried as-is.
// Every engine write is idempotent, so storage failures and timeouts qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorage) || errors.Is(err, ErrTimeout)
}
