// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import "time"

// EventType is an asynchronous notification emitted by an engine instance.
type EventType string

const (
	// EventQR carries a fresh authentication challenge in Payload.
	EventQR EventType = "qr"
	// EventQRExpired signals that the last challenge can no longer be scanned.
	EventQRExpired EventType = "qr_expired"
	// EventAuthenticated signals a successful scan or a restored authenticated state.
	EventAuthenticated EventType = "authenticated"
	// EventDisconnected signals transport loss.
	EventDisconnected EventType = "disconnected"
	// EventAuthFailure signals that stored credentials were rejected.
	EventAuthFailure EventType = "auth_failure"
)

// Event is a single engine notification.
type Event struct {
	Type    EventType
	Payload string
	At      time.Time
}
