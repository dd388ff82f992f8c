// Package apperror defines the error taxonomy shared by every layer.
//
// Lower layers return an *AppError wrapping one of the sentinels below.
// Callers classify with errors.Is; the HTTP layer maps sentinels to status
// codes in exactly one place (handler/response.go).
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation error")
	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("forbidden")
	ErrPersistence = errors.New("persistence error")
	ErrFormat      = errors.New("format error")
)

type AppError struct {
	Err     error  // sentinel (ErrNotFound, ErrValidation, ...)
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error from a driver or library
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause so errors.Is matches either.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Persistence reports a failed write to the storage medium (quota exceeded,
// serialization failure, driver error). op describes what was attempted.
func Persistence(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrPersistence,
		Message: fmt.Sprintf("failed to %s", op),
		Cause:   cause,
	}
}

// FormatFailed reports SQL text the formatter could not process. The message
// carries the parser's own explanation.
func FormatFailed(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrFormat,
		Message: message,
		Cause:   cause,
	}
}
