package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
//	writeJSON(w, http.StatusOK, data)
//	writeError(w, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//
//	{"error": "snippet not found with id abc123", "code": "not_found"}
//
// "error" is for humans. "code" is the machine-readable kind; the Go client
// branches on it to recognise a ledger conflict it can reconcile.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/csstoy/internal/apperror"
	"github.com/sakif/csstoy/internal/service"
)

// maxBodyBytes caps request bodies. The largest legitimate body is a
// snippet at the CSS and HTML ceilings plus JSON overhead.
const maxBodyBytes = 64 << 10

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// MessageResponse acknowledges an operation that has nothing else to say.
type MessageResponse struct {
	Message string `json:"message"`
}

var validate = newValidator()

// newValidator reports JSON key names in errors instead of Go field names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE writing the body. Once Encode
// writes, the headers are gone and later changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps a domain error kind to an HTTP status.
//
// A ledger Conflict is a 400, not a 409: the request was well-formed but
// the caller's assumption about the ledger (not liked yet / liked) was
// wrong. Clients tell it apart from validation by the "code" field.
func statusFor(kind string) int {
	switch kind {
	case "validation_error", "conflict":
		return http.StatusBadRequest
	case "unauthorized":
		return http.StatusUnauthorized
	case "forbidden":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a domain error to the appropriate HTTP status code and
// sends it.
//
// errors.Is() UNWRAPPING:
// Services wrap errors with context ("creating snippet: %w"). errors.Is and
// errors.As walk the chain, so a wrapped AppError still maps correctly.
//
// NEVER expose internal error details: a raw storage error can carry SQL or
// file paths, so anything unclassified becomes a generic 500.
func writeError(w http.ResponseWriter, err error) {
	kind := apperror.Kind(err)
	status := statusFor(kind)

	var appErr *apperror.AppError
	msg := "an internal error occurred"
	if status != http.StatusInternalServerError && errors.As(err, &appErr) && appErr.Message != "" {
		msg = appErr.Message
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", slog.String("error", err.Error()))
	}

	writeJSON(w, status, ErrorResponse{Error: msg, Code: kind})
}

// decodeJSON reads a size-limited JSON body into dst and runs its
// `validate` struct tags. Unknown fields are ignored so older clients keep
// working.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperror.ValidationFailed("", "request body is too large")
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("", "request body is required")
		default:
			return apperror.ValidationFailed("", "invalid JSON body")
		}
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError turns the first validator failure into a readable
// AppError naming the JSON field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.ValidationFailed("", "invalid request")
	}
	fe := verrs[0]
	field := fe.Field()

	var msg string
	switch fe.Tag() {
	case "required":
		msg = field + " is required"
	case "email":
		msg = field + " must be a valid email address"
	case "min":
		msg = fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "eqfield":
		msg = field + " does not match"
	default:
		msg = field + " is invalid"
	}
	return apperror.ValidationFailed(field, msg)
}

// pageFrom reads ?page and ?limit. Bad values fall back to defaults in
// the service.
func pageFrom(r *http.Request) service.PageRequest {
	return service.PageRequest{
		Page:  queryInt(r, "page"),
		Limit: queryInt(r, "limit"),
	}
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
