package domain

import "errors"

// Common domain errors.
var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicate is returned when a duplicate resource is detected.
	ErrDuplicate = errors.New("duplicate resource")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnparseable is returned when a log could not be turned into a run.
	ErrUnparseable = errors.New("log could not be parsed")
)

// NotFoundError wraps ErrNotFound with additional context.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	return e.Resource + " not found: " + e.ID
}

func (e NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource, id string) NotFoundError {
	return NotFoundError{Resource: resource, ID: id}
}

// DuplicateError wraps ErrDuplicate with additional context.
type DuplicateError struct {
	Resource string
	Field    string
	Value    string
}

func (e DuplicateError) Error() string {
	return e.Resource + " with " + e.Field + " '" + e.Value + "' already exists"
}

func (e DuplicateError) Unwrap() error {
	return ErrDuplicate
}

// NewDuplicateError creates a new DuplicateError.
func NewDuplicateError(resource, field, value string) DuplicateError {
	return DuplicateError{Resource: resource, Field: field, Value: value}
}
