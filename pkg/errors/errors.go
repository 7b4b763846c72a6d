package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an application error
type ErrorType string

const (
	// Domain errors
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeConflict   ErrorType = "CONFLICT"

	// Infrastructure errors
	ErrorTypeDatabase     ErrorType = "DATABASE"
	ErrorTypeUnavailable  ErrorType = "UNAVAILABLE"
	ErrorTypeProvisioning ErrorType = "PROVISIONING"
	ErrorTypeExternal     ErrorType = "EXTERNAL"
	ErrorTypeInternal     ErrorType = "INTERNAL"
)

// AppError is the error type returned by the graph core. Absence of a
// node or edge is never reported as an AppError; it is a nil result.
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError of the given type
func New(t ErrorType, message string) *AppError {
	return &AppError{Type: t, Message: message}
}

// Wrap creates an AppError wrapping an underlying cause
func Wrap(t ErrorType, message string, cause error) *AppError {
	return &AppError{Type: t, Message: message, Cause: cause}
}

// Validation creates a validation error
func Validation(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

// Database wraps a storage-level failure
func Database(message string, cause error) *AppError {
	return Wrap(ErrorTypeDatabase, message, cause)
}

// Unavailable signals that a backend cannot be reached or has been closed
func Unavailable(message string) *AppError {
	return New(ErrorTypeUnavailable, message)
}

// Provisioning wraps a tenant storage-unit creation failure
func Provisioning(message string, cause error) *AppError {
	return Wrap(ErrorTypeProvisioning, message, cause)
}

// External wraps a failure of an external collaborator (embedding API,
// vector index)
func External(message string, cause error) *AppError {
	return Wrap(ErrorTypeExternal, message, cause)
}

// IsType reports whether err is (or wraps) an AppError of the given type
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}
