// AngelaMos | 2026
// response.go

package core

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Envelope is the wire shape every API response uses:
// {"success": true, "data": ...} or
// {"success": false, "error": {"code": ..., "message": ...}}.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorEnvelope `json:"error,omitempty"`
}

type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // best-effort response write
	_ = json.NewEncoder(w).Encode(body)
}

func OK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func fail(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Envelope{
		Success: false,
		Error:   &ErrorEnvelope{Code: code, Message: message},
	})
}

func BadRequest(w http.ResponseWriter, message string) {
	fail(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

func NotFound(w http.ResponseWriter, resource string) {
	fail(w, http.StatusNotFound, "NOT_FOUND", resource+" not found")
}

func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "authentication required"
	}
	fail(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func Forbidden(w http.ResponseWriter, message string) {
	fail(w, http.StatusForbidden, "FORBIDDEN", message)
}

func InternalServerError(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	fail(
		w,
		http.StatusInternalServerError,
		"INTERNAL_ERROR",
		"an unexpected error occurred",
	)
}

// JSONError renders an error through the envelope. AppErrors carry their
// own status and code; anything else becomes a 500 without leaking detail.
func JSONError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		fail(w, appErr.StatusCode, appErr.Code, appErr.Message)
		return
	}
	InternalServerError(w, err)
}
