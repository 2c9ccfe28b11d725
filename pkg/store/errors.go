package store

import (
	"errors"
	"fmt"
)

// Common errors returned by the store.
var (
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when creating a session whose id is taken.
	ErrSessionExists = errors.New("session already exists")

	// ErrNoCurrentSession is returned when no current session is set.
	ErrNoCurrentSession = errors.New("no current session")

	// ErrCheckpointNotFound is returned when a checkpoint id is unknown.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed is returned when using a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// StorageError reports a capacity or I/O failure. The offending operation
// is rejected and no partial write occurs; there is no implicit eviction.
type StorageError struct {
	// Op is the rejected operation (create, update, ...).
	Op string

	// Reason describes the capacity or I/O condition.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage error in %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("storage error in %s: %s", e.Op, e.Reason)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// ValidationError reports a record that fails shape checks on create,
// patch, or import. The operation is rejected and the store is unchanged.
type ValidationError struct {
	// Field names the offending field.
	Field string

	// Reason describes the violation.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
