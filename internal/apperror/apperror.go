// Package apperror defines the application's error taxonomy.
//
// Every error that crosses a layer boundary is (or wraps) an *AppError whose
// Err field is one of the sentinels below. Callers classify errors with
// errors.Is(err, apperror.ErrConflict) and friends; the HTTP layer maps each
// sentinel to a status code in exactly one place (handler.writeError).
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
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

// Conflict reports that the stored state disagrees with what the caller
// assumed, e.g. liking a snippet that is already liked. The message is
// meant for humans; clients should branch on ErrConflict, not on the text.
func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
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

// Unauthorized means the caller is not authenticated at all, e.g. an
// expired token or a wrong password.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Internal wraps a storage or infrastructure failure. The cause is kept for
// logging via Unwrap chains but the message shown to clients stays generic.
func Internal(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrInternal, cause),
		Message: "an internal error occurred",
	}
}

// Kind returns a short machine-readable name for the error's category.
// It is what the API puts in the "code" field of error bodies.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal_error"
	}
}

// FromKind is the inverse of Kind, used by API clients to turn an error
// body back into a classified error.
func FromKind(kind, message string) *AppError {
	var sentinel error
	switch kind {
	case "validation_error":
		sentinel = ErrValidation
	case "unauthorized":
		sentinel = ErrUnauthorized
	case "forbidden":
		sentinel = ErrForbidden
	case "not_found":
		sentinel = ErrNotFound
	case "conflict":
		sentinel = ErrConflict
	default:
		sentinel = ErrInternal
	}
	return &AppError{Err: sentinel, Message: message}
}
