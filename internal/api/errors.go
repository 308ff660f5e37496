// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ManuGH/sessiond/internal/domain/session/manager"
	"github.com/ManuGH/sessiond/internal/log"
)

// StatusTooEarly is returned while a QR challenge has not been issued yet.
const StatusTooEarly = http.StatusTooEarly

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the session error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, manager.ErrInvalidID):
		return http.StatusUnprocessableEntity
	case errors.Is(err, manager.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, manager.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, manager.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, manager.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, manager.ErrEngineFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeSessionError writes the error response for a failed session operation.
func writeSessionError(w http.ResponseWriter, r *http.Request, id string, err error) {
	code := statusFor(err)
	msg := err.Error()
	switch code {
	case http.StatusNotFound:
		msg = notFoundMessage(id)
	case http.StatusInternalServerError:
		msg = "Internal server error"
	}
	apiErrorsTotal.WithLabelValues(fmt.Sprintf("%d", code)).Inc()

	logger := log.WithComponentFromContext(r.Context(), "api")
	ev := logger.Warn()
	if code >= http.StatusInternalServerError {
		ev = logger.Error()
	}
	ev.Err(err).
		Str(log.FieldSessionID, id).
		Int("status", code).
		Str("event", "session.request_failed").
		Msg("session request failed")

	writeJSON(w, code, errorResponse{Error: msg})
}

func notFoundMessage(id string) string {
	return fmt.Sprintf("Session not found: %s. Use /session/start/%s to create a new session", id, id)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	apiErrorsTotal.WithLabelValues(fmt.Sprintf("%d", http.StatusUnprocessableEntity)).Inc()
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: msg})
}
