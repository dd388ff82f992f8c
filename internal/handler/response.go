// Package handler exposes the workspace over a JSON HTTP API.
//
// CONSISTENT ERROR FORMAT:
// Every error response has the same shape so the UI can always parse it:
//
//	{"error": "not_found", "message": "snippet not found with id abc123"}
//
// writeError is the only place domain errors become status codes.
package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/sakif/sql-snippets/internal/apperror"
)

// maxBodyBytes bounds request bodies. An import of many snippets is the
// largest legitimate payload.
const maxBodyBytes = 8 << 20

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already out; all we can do is log.
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// statusFor maps an error to its HTTP status and machine-readable type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrFormat):
		return http.StatusUnprocessableEntity, "format_error"
	case errors.Is(err, apperror.ErrPersistence):
		return http.StatusInsufficientStorage, "persistence_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError sends err in the standard shape. Only *apperror.AppError
// messages reach the client; anything else becomes a generic 500 so driver
// errors and file paths never leak.
func writeError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}
	writeJSON(w, status, ErrorResponse{
		Error:   kind,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a JSON body into v. Malformed input is a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return &apperror.AppError{
			Err:     apperror.ErrValidation,
			Message: "Invalid JSON body",
			Cause:   err,
		}
	}
	return nil
}

// readBody reads a raw body up to maxBodyBytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, &apperror.AppError{
			Err:     apperror.ErrValidation,
			Message: "Request body too large or unreadable",
			Cause:   err,
		}
	}
	return data, nil
}
