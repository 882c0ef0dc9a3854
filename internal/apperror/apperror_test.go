package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("snippet", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("title", "title is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("already liked"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("token expired"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "Internal wraps ErrInternal",
			err:       Internal(errors.New("disk full")),
			target:    ErrInternal,
			wantMatch: true,
		},
		{
			name:      "wrapped with fmt.Errorf still matches",
			err:       fmt.Errorf("liking snippet: %w", Conflict("already liked")),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("snippet", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "Conflict does NOT match ErrInternal",
			err:       Conflict("not liked"),
			target:    ErrInternal,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("snippet", "abc123"),
			wantMessage: "snippet not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("title", "title is required"),
			wantMessage: "title is required",
		},
		{
			name:        "Internal hides the cause",
			err:         Internal(errors.New("database is locked")),
			wantMessage: "an internal error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("database is locked")
	err := Internal(cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(Internal(cause), cause) = false, want true")
	}
}

func TestKindRoundTrip(t *testing.T) {
	errs := []*AppError{
		ValidationFailed("x", "bad"),
		Unauthorized("no token"),
		Forbidden("not yours"),
		NotFound("comment", "1"),
		Conflict("already collected"),
		Internal(errors.New("boom")),
	}

	for _, e := range errs {
		kind := Kind(e)
		back := FromKind(kind, e.Message)
		if Kind(back) != kind {
			t.Errorf("FromKind(Kind(%v)) kind = %q, want %q", e, Kind(back), kind)
		}
	}
}

func TestKind_PlainErrorIsInternal(t *testing.T) {
	if got := Kind(errors.New("whatever")); got != "internal_error" {
		t.Errorf("Kind(plain) = %q, want internal_error", got)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("email", "invalid email format")

	if err.Field != "email" {
		t.Errorf("Field = %q, want %q", err.Field, "email")
	}
}
