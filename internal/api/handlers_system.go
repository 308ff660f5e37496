// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/sessiond/internal/domain/session/manager"
)

type healthResponse struct {
	Success bool                 `json:"success"`
	Data    manager.HealthReport `json:"data"`
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "pong"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var rep manager.HealthReport
	if s.deps.Health != nil {
		rep = s.deps.Health.Report(r.Context())
	}
	if rep.SessionDetails == nil {
		rep.SessionDetails = []manager.SessionHealth{}
	}
	writeJSON(w, http.StatusOK, healthResponse{Success: true, Data: rep})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ready": true})
		return
	}
	s.deps.Ready(w, r)
}
