// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"time"

	"github.com/ManuGH/sessiond/internal/domain/session/ports"
)

// Record is one tenant's client instance and its state.
type Record struct {
	ID        string
	State     SessionState
	QRStatus  QRStatus
	QRPayload string

	// Handle is exclusively owned by the record. Only the lifecycle controller closes it.
	Handle ports.Handle

	FailureCount   int
	LastActivityAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastProbeAt    time.Time

	// Persisted reports whether on-disk authentication state exists for this ID.
	Persisted bool

	// Generation increases on every (re)start; async results from older generations are dropped.
	Generation uint64

	// Message is the last human-readable reason (launch error, auth failure, probe error).
	Message string
}

// NewRecord returns an INITIALIZING record for id.
func NewRecord(id string, now time.Time) *Record {
	return &Record{
		ID:             id,
		State:          SessionInitializing,
		QRStatus:       QRNotRequested,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
		Generation:     1,
	}
}

// Clone returns a copy safe to hand to readers. The handle reference is shared, not owned.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// HandleID returns the attached handle's ID or "".
func (r *Record) HandleID() string {
	if r == nil || r.Handle == nil {
		return ""
	}
	return r.Handle.ID()
}

// Summary is the list() projection of a record.
type Summary struct {
	SessionID string       `json:"sessionId"`
	State     SessionState `json:"state"`
}

// Summary projects r.
func (r *Record) Summary() Summary {
	return Summary{SessionID: r.ID, State: r.State}
}
