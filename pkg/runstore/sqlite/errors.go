package sqlite

import (
	"errors"
	"fmt"
)

// ErrRunNotFound is returned by Get for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// StorageError represents a failed run store operation.
type StorageError struct {
	Operation string // Operation that failed (e.g., "save", "find_cached")
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("runstore %s failed: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

func storageError(operation string, cause error) *StorageError {
	return &StorageError{Operation: operation, Cause: cause}
}
