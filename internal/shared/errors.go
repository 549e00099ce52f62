package shared

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the engine error taxonomy. Callers classify with
// errors.Is; wrap with fmt.Errorf("...: %w", ...) to add context.
var (
	// ErrValidation indicates bad input shape or an out-of-bounds value,
	// detected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates an unknown investment or account id.
	ErrNotFound = errors.New("not found")
	// ErrStateConflict indicates an operation not permitted in the current
	// status, e.g. cancelling or settling a non-ACTIVE investment.
	ErrStateConflict = errors.New("state conflict")
	// ErrDependency indicates the account store or transaction ledger failed.
	ErrDependency = errors.New("dependency failure")
)

// ValidationError carries a structured reason so the UI can present
// actionable messages ("insufficient balance", "amount below minimum").
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap makes ValidationError match ErrValidation under errors.Is.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a field-scoped validation error.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
