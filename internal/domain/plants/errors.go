package plants

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned when the store is used before Initialize.
var ErrNotInitialized = errors.New("plant store not initialized")

// ErrDuplicateID indicates a record with the same ID is already stored.
var ErrDuplicateID = errors.New("plant id already exists")

// InitializationError means the store could not be set up, e.g. the backing
// file cannot be opened or does not hold a valid document.
type InitializationError struct {
	Path string
	Err  error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialize plant store %s: %v", e.Path, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// PersistenceError means writing the collection to durable storage failed.
type PersistenceError struct {
	Path string
	Err  error
	// Retained is set when the record was kept in memory and will reach
	// storage with the next successful write.
	Retained bool
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist plant store %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsRetained reports whether err is a PersistenceError whose record was kept.
func IsRetained(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Retained
}

// ValidationError describes a record that violates a field invariant.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
