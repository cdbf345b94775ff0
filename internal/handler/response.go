// Package handler turns HTTP requests into service calls and service
// results into the JSON envelope every LearnMade endpoint speaks.
//
// RESPONSE SHAPE:
// Success: {"success": true, "data": ..., "message": "..."}
// Failure: {"success": false, "error": "<kind>", "message": "...", "details": [...]}
//
// The frontend only ever checks `success` first, then reads either `data`
// or `message`, regardless of the status code.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/learnmade/internal/apperror"
)

// maxJSONBody caps every JSON request body. Course payloads with several
// snippets are the largest thing we accept.
const maxJSONBody = 1 << 20

// Envelope wraps every successful response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Success bool                  `json:"success"`
	Error   string                `json:"error"`   // kind, e.g. "not_found" or "Validation Error"
	Message string                `json:"message"` // human-readable description
	Details []apperror.FieldError `json:"details,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be written before the body; once Encode starts
// writing, header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Success: true, Message: message})
}

// writeError maps a domain error to the appropriate HTTP status code.
//
// The service layer never knows about status codes; this is the only place
// apperror kinds become 400/401/404/409/502. errors.Is walks the whole
// chain, so a wrapped *AppError maps the same as a bare one.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		kind := "internal_error"
		message := appErr.Message

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			kind = "Validation Error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			kind = "unauthorized"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			kind = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			kind = "conflict"
		case errors.Is(err, apperror.ErrUpstream):
			status = http.StatusBadGateway
			kind = "upstream_error"
			slog.Error("upstream failure", slog.String("error", err.Error()))
		default:
			message = "An internal error occurred"
			slog.Error("unmapped application error", slog.String("error", err.Error()))
		}

		writeJSON(w, status, ErrorResponse{
			Error:   kind,
			Message: message,
			Details: appErr.Details,
		})
		return
	}

	// Unknown errors may carry SQL or file paths: log them, never send them.
	slog.Error("internal error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a size-limited JSON body into dst. An empty body leaves
// dst at its zero value so the service reports the missing fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.As(err, &tooLarge):
			return apperror.ValidationFailed("body", "Request body too large")
		default:
			return apperror.ValidationFailed("body", "Invalid JSON body")
		}
	}
	return nil
}
