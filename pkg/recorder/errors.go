package recorder

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDraft is wrapped by every ValidationError.
var ErrInvalidDraft = errors.New("invalid cost draft")

// ValidationError lists every problem found in a draft.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid cost draft: %s", strings.Join(e.Problems, "; "))
}

// Unwrap lets callers match ErrInvalidDraft with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidDraft
}
