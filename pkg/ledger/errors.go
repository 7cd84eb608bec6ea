package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entry id does not exist.
	ErrNotFound = errors.New("cost entry not found")

	// ErrDuplicateEntry is returned when appending an id twice.
	ErrDuplicateEntry = errors.New("cost entry already exists")

	// ErrInvalidQuery is wrapped by every QueryError.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidEntry is returned when an entry is missing required fields.
	ErrInvalidEntry = errors.New("invalid cost entry")
)

// StorageError represents an error from the storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "memory")
	Operation string // Operation that failed ("append", "query", "delete", etc.)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// QueryError describes a rejected query parameter.
type QueryError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid query [field=%s]: %s", e.Field, e.Message)
}

// Unwrap lets callers match ErrInvalidQuery with errors.Is.
func (e *QueryError) Unwrap() error {
	return ErrInvalidQuery
}

// NewQueryError creates a new QueryError.
func NewQueryError(field, message string) *QueryError {
	return &QueryError{Field: field, Message: message}
}

// RetentionError represents an error during retention pruning.
type RetentionError struct {
	RetentionDays int   // Configured retention period
	Cause         error // Underlying error
}

// Error implements the error interface.
func (e *RetentionError) Error() string {
	return fmt.Sprintf("retention error [retention_days=%d]: %v", e.RetentionDays, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RetentionError) Unwrap() error {
	return e.Cause
}

// NewRetentionError creates a new RetentionError.
func NewRetentionError(retentionDays int, cause error) *RetentionError {
	return &RetentionError{RetentionDays: retentionDays, Cause: cause}
}
