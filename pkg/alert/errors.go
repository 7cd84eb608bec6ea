package alert

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlertNotFound is returned when an alert id does not exist.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrDuplicateAlert is returned when creating an alert whose id exists.
	ErrDuplicateAlert = errors.New("alert already exists")

	// ErrInvalidSpec is wrapped by every ValidationError.
	ErrInvalidSpec = errors.New("invalid alert spec")

	// ErrNoLedger is returned when a windowed alert is evaluated without a
	// ledger to read from.
	ErrNoLedger = errors.New("windowed alert requires a ledger")
)

// ValidationError lists every problem found in a Spec.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid alert spec: %s", strings.Join(e.Problems, "; "))
}

// Unwrap lets callers match ErrInvalidSpec with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidSpec
}
