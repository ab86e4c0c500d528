package store

import (
	"errors"
	"fmt"
)

// DBError is a storage failure with the operation that hit it. The scan
// engine counts a symbol as failed when its read or write returns one.
type DBError struct {
	Operation string
	Err       error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("database error in %s: %v", e.Operation, e.Err)
}

func (e *DBError) Unwrap() error { return e.Err }

// WrapDBError wraps err with operation context. nil stays nil.
func WrapDBError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &DBError{Operation: operation, Err: err}
}

// IsDBError reports whether err came from the storage layer.
func IsDBError(err error) bool {
	var e *DBError
	return errors.As(err, &e)
}

// ValidationError rejects a bad argument before it reaches the database.
type ValidationError struct {
	Field  string
	Reason string
	Value  any
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for field '%s': %s (value: %v)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string, value any) error {
	return &ValidationError{Field: field, Reason: reason, Value: value}
}
