// Package services defines the shared error vocabulary used by the
// pipeline stages and mapped to HTTP statuses at the API layer.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document, graph, entity, session,
	// or job is not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when attempting to create a duplicate record
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransient is returned when a remote dependency failed after
	// exhausting the retry policy
	ErrTransient = errors.New("transient external failure")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
