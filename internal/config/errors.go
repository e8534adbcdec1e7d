package config

import (
	"errors"
	"fmt"
)

// Errors returned by configuration operations.
var (
	// ErrValidationFailed indicates a value is out of range.
	ErrValidationFailed = errors.New("validation failed")

	// ErrUnsupportedFormat indicates the file extension has no loader.
	ErrUnsupportedFormat = errors.New("unsupported config format")
)

// ValidationError describes a validation failure for a setting.
type ValidationError struct {
	// Path is the setting path that failed validation.
	Path string
	// Message describes the validation error.
	Message string
	// Value is the invalid value.
	Value any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v)", e.Path, e.Message, e.Value)
}

// Is reports ErrValidationFailed for errors.Is.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
