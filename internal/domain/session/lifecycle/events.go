// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"fmt"

	"github.com/ManuGH/sessiond/internal/domain/session/ports"
)

// EventKind is a domain event in the session lifecycle.
type EventKind int

const (
	EvUnknown EventKind = iota
	EvLaunchRequested
	EvLaunchFailed
	EvQRReceived
	EvQRExpired
	EvAuthenticated
	EvDisconnected
	EvAuthFailure
	EvRestartRequested
	EvTerminateRequested
)

var eventNames = map[EventKind]string{
	EvUnknown:            "unknown",
	EvLaunchRequested:    "launch_requested",
	EvLaunchFailed:       "launch_failed",
	EvQRReceived:         "qr_received",
	EvQRExpired:          "qr_expired",
	EvAuthenticated:      "authenticated",
	EvDisconnected:       "disconnected",
	EvAuthFailure:        "auth_failure",
	EvRestartRequested:   "restart_requested",
	EvTerminateRequested: "terminate_requested",
}

func (e EventKind) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Event carries optional domain metadata for a transition.
type Event struct {
	Kind    EventKind
	Payload string // QR challenge for EvQRReceived
	Detail  string // human-readable reason
}

// FromEngine maps an engine notification onto a lifecycle event.
func FromEngine(ev ports.Event) (Event, bool) {
	switch ev.Type {
	case ports.EventQR:
		return Event{Kind: EvQRReceived, Payload: ev.Payload}, true
	case ports.EventQRExpired:
		return Event{Kind: EvQRExpired}, true
	case ports.EventAuthenticated:
		return Event{Kind: EvAuthenticated}, true
	case ports.EventDisconnected:
		return Event{Kind: EvDisconnected, Detail: ev.Payload}, true
	case ports.EventAuthFailure:
		return Event{Kind: EvAuthFailure, Detail: ev.Payload}, true
	}
	return Event{}, false
}
