// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/ManuGH/sessiond/internal/domain/session/model"

// Transition is a single allowed edge in the lifecycle state machine.
type Transition struct {
	From  model.SessionState
	To    model.SessionState
	Event EventKind
}

var transitionsTable = []Transition{
	// Start path
	{From: model.SessionInitializing, To: model.SessionStarting, Event: EvLaunchRequested},
	{From: model.SessionStarting, To: model.SessionScanQR, Event: EvQRReceived},
	{From: model.SessionStarting, To: model.SessionConnected, Event: EvAuthenticated},
	{From: model.SessionStarting, To: model.SessionDisconnected, Event: EvLaunchFailed},

	// QR authentication
	{From: model.SessionScanQR, To: model.SessionScanQR, Event: EvQRReceived},
	{From: model.SessionScanQR, To: model.SessionScanQR, Event: EvQRExpired},
	{From: model.SessionScanQR, To: model.SessionConnected, Event: EvAuthenticated},
	{From: model.SessionConnected, To: model.SessionConnected, Event: EvAuthenticated},

	// Transport loss and auth failure
	{From: model.SessionStarting, To: model.SessionDisconnected, Event: EvDisconnected},
	{From: model.SessionScanQR, To: model.SessionDisconnected, Event: EvDisconnected},
	{From: model.SessionConnected, To: model.SessionDisconnected, Event: EvDisconnected},
	{From: model.SessionStarting, To: model.SessionDisconnected, Event: EvAuthFailure},
	{From: model.SessionScanQR, To: model.SessionDisconnected, Event: EvAuthFailure},
	{From: model.SessionConnected, To: model.SessionDisconnected, Event: EvAuthFailure},

	// Auto-recovery from DISCONNECTED
	{From: model.SessionDisconnected, To: model.SessionConnected, Event: EvAuthenticated},
	{From: model.SessionDisconnected, To: model.SessionScanQR, Event: EvQRReceived},
	{From: model.SessionDisconnected, To: model.SessionDisconnected, Event: EvDisconnected},

	// Restart (explicit or health escalation)
	{From: model.SessionInitializing, To: model.SessionInitializing, Event: EvRestartRequested},
	{From: model.SessionStarting, To: model.SessionInitializing, Event: EvRestartRequested},
	{From: model.SessionScanQR, To: model.SessionInitializing, Event: EvRestartRequested},
	{From: model.SessionConnected, To: model.SessionInitializing, Event: EvRestartRequested},
	{From: model.SessionDisconnected, To: model.SessionInitializing, Event: EvRestartRequested},

	// Terminate always wins
	{From: model.SessionInitializing, To: model.SessionTerminated, Event: EvTerminateRequested},
	{From: model.SessionStarting, To: model.SessionTerminated, Event: EvTerminateRequested},
	{From: model.SessionScanQR, To: model.SessionTerminated, Event: EvTerminateRequested},
	{From: model.SessionConnected, To: model.SessionTerminated, Event: EvTerminateRequested},
	{From: model.SessionDisconnected, To: model.SessionTerminated, Event: EvTerminateRequested},
	{From: model.SessionTerminated, To: model.SessionTerminated, Event: EvTerminateRequested},
}

type edgeKey struct {
	from model.SessionState
	ev   EventKind
}

var transitionIndex = func() map[edgeKey]Transition {
	idx := make(map[edgeKey]Transition, len(transitionsTable))
	for _, tr := range transitionsTable {
		idx[edgeKey{from: tr.From, ev: tr.Event}] = tr
	}
	return idx
}()

// TransitionFor returns the allowed transition for (from, ev).
func TransitionFor(from model.SessionState, ev EventKind) (Transition, bool) {
	tr, ok := transitionIndex[edgeKey{from: from, ev: ev}]
	return tr, ok
}

// Transitions returns a copy of the table (docs, tests).
func Transitions() []Transition {
	out := make([]Transition, len(transitionsTable))
	copy(out, transitionsTable)
	return out
}
