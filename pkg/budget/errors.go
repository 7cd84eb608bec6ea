package budget

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBudgetNotFound is returned when a budget id does not exist.
	ErrBudgetNotFound = errors.New("budget not found")

	// ErrDuplicateBudget is returned when creating a budget whose id exists.
	ErrDuplicateBudget = errors.New("budget already exists")

	// ErrInvalidSpec is wrapped by every ValidationError.
	ErrInvalidSpec = errors.New("invalid budget spec")
)

// ValidationError lists every problem found in a Spec.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid budget spec: %s", strings.Join(e.Problems, "; "))
}

// Unwrap lets callers match ErrInvalidSpec with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidSpec
}
