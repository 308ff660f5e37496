// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/ManuGH/sessiond/internal/domain/session/manager"
	"github.com/ManuGH/sessiond/internal/domain/session/model"
	"github.com/ManuGH/sessiond/internal/log"
)

const qrImageSize = 256

type messageResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	State   model.SessionState `json:"state,omitempty"`
}

type statusResponse struct {
	Success  bool               `json:"success"`
	State    model.SessionState `json:"state"`
	QRStatus model.QRStatus     `json:"qrStatus"`
	QR       string             `json:"qr,omitempty"`
	Message  string             `json:"message,omitempty"`
}

// terminatedResponse reports a bulk termination. Sessions that failed to stop are
// listed in Errors; the ones that did stop are still reported.
type terminatedResponse struct {
	Success    bool     `json:"success"`
	Terminated []string `json:"terminated"`
	Errors     []string `json:"errors,omitempty"`
}

type listResponse struct {
	Success  bool            `json:"success"`
	Sessions []model.Summary `json:"sessions"`
}

type qrResponse struct {
	Success bool   `json:"success"`
	QR      string `json:"qr"`
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionId")
}

// eraseDisk reads the eraseDisk flag. An explicit tenant terminate is a logout,
// so the flag defaults to true.
func eraseDisk(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("eraseDisk")
	if raw == "" {
		return true, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("eraseDisk must be a boolean, got %q", raw)
	}
	return v, nil
}

// parseMaxIdle accepts a Go duration ("90m") or a bare number of minutes.
func parseMaxIdle(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, fmt.Errorf("maxIdle is required")
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		minutes, nerr := strconv.Atoi(raw)
		if nerr != nil {
			return 0, fmt.Errorf("maxIdle must be a duration like 30m, got %q", raw)
		}
		d = time.Duration(minutes) * time.Minute
	}
	if d <= 0 {
		return 0, fmt.Errorf("maxIdle must be positive, got %q", raw)
	}
	return d, nil
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	res, err := s.deps.Sessions.Start(r.Context(), id)
	if err != nil {
		writeSessionError(w, r, id, err)
		return
	}
	if res.Created {
		writeJSON(w, http.StatusAccepted, messageResponse{
			Success: true,
			Message: "Session initiated successfully",
			State:   res.State,
		})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: "Session already exists",
		State:   res.State,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	st, err := s.deps.Sessions.Status(r.Context(), id)
	if err != nil {
		writeSessionError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Success:  true,
		State:    st.State,
		QRStatus: st.QRStatus,
		QR:       st.QR,
		Message:  st.Message,
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if err := s.deps.Sessions.Restart(r.Context(), id); err != nil {
		writeSessionError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Restart requested for session " + id})
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	erase, err := eraseDisk(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.deps.Sessions.Terminate(r.Context(), id, manager.TerminateOptions{EraseDisk: erase}); err != nil {
		writeSessionError(w, r, id, err)
		return
	}
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldSessionID, id).
		Bool("erase_disk", erase).
		Msg("session terminated by tenant")
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Session terminated"})
}

func (s *Server) handleTerminateInactive(w http.ResponseWriter, r *http.Request) {
	maxIdle, err := parseMaxIdle(r.URL.Query().Get("maxIdle"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	erase, err := eraseDisk(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	ids, err := s.deps.Sessions.TerminateInactive(r.Context(), maxIdle, manager.TerminateOptions{EraseDisk: erase})
	writeTerminated(w, r, "terminate_inactive", ids, err)
}

func (s *Server) handleTerminateAll(w http.ResponseWriter, r *http.Request) {
	erase, err := eraseDisk(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	ids, err := s.deps.Sessions.TerminateAll(r.Context(), manager.TerminateOptions{EraseDisk: erase})
	writeTerminated(w, r, "terminate_all", ids, err)
}

// writeTerminated answers 200 even when some sessions failed, so the caller
// still learns which ones were terminated.
func writeTerminated(w http.ResponseWriter, r *http.Request, op string, ids []string, err error) {
	resp := terminatedResponse{Success: err == nil, Terminated: nonNil(ids)}
	if err != nil {
		resp.Errors = splitErrors(err)
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Warn().
			Err(err).
			Str("operation", op).
			Int("terminated", len(ids)).
			Msg("bulk termination partially failed")
	}
	writeJSON(w, http.StatusOK, resp)
}

func splitErrors(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		msgs := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listResponse{Success: true, Sessions: nonNil(s.deps.Sessions.List(r.Context()))})
}

// qrPayload resolves the open QR challenge, writing the error response itself when there is none.
func (s *Server) qrPayload(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := sessionID(r)
	st, err := s.deps.Sessions.Status(r.Context(), id)
	if err != nil {
		writeSessionError(w, r, id, err)
		return "", false
	}
	if st.QR != "" {
		return st.QR, true
	}
	switch st.State {
	case model.SessionInitializing, model.SessionStarting:
		w.Header().Set("Retry-After", "2")
		writeJSON(w, StatusTooEarly, errorResponse{Error: "QR code not yet generated, retry shortly"})
	default:
		writeJSON(w, http.StatusNotFound, errorResponse{
			Error: fmt.Sprintf("No QR code available for session %s (state %s)", id, st.State),
		})
	}
	return "", false
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	qr, ok := s.qrPayload(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, qrResponse{Success: true, QR: qr})
}

func (s *Server) handleQRImage(w http.ResponseWriter, r *http.Request) {
	qr, ok := s.qrPayload(w, r)
	if !ok {
		return
	}
	png, err := qrcode.Encode(qr, qrcode.Medium, qrImageSize)
	if err != nil {
		writeSessionError(w, r, sessionID(r), err)
		return
	}
	qrImagesRendered.Inc()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
