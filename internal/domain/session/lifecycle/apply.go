// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"fmt"
	"time"

	"github.com/ManuGH/sessiond/internal/domain/session/model"
)

// Apply moves rec along the edge for ev and updates the QR fields that belong to it.
// The record is left untouched when the edge does not exist.
func Apply(rec *model.Record, ev Event, now time.Time) (Transition, error) {
	tr, ok := TransitionFor(rec.State, ev.Kind)
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s + %s", ErrIllegalTransition, rec.State, ev.Kind)
	}

	rec.State = tr.To
	rec.UpdatedAt = now

	switch ev.Kind {
	case EvQRReceived:
		rec.QRStatus = model.QRReadyForScan
		rec.QRPayload = ev.Payload
	case EvQRExpired:
		rec.QRStatus = model.QRExpired
		rec.QRPayload = ""
	case EvAuthenticated:
		rec.QRStatus = model.QRScannedAuthenticated
		rec.QRPayload = ""
		rec.Persisted = true
		rec.Message = ""
	case EvAuthFailure:
		rec.QRStatus = model.QRExpired
		rec.QRPayload = ""
	case EvRestartRequested:
		rec.QRStatus = model.QRNotRequested
		rec.QRPayload = ""
		rec.FailureCount = 0
		rec.Generation++
	case EvTerminateRequested:
		rec.QRPayload = ""
	}
	if ev.Detail != "" {
		rec.Message = ev.Detail
	}
	return tr, nil
}
