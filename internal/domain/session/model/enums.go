// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// SessionState is the client-visible lifecycle of a tenant session.
type SessionState string

const (
	// SessionInitializing: record created, engine not yet requested.
	SessionInitializing SessionState = "INITIALIZING"
	// SessionStarting: engine instance requested.
	SessionStarting SessionState = "STARTING"
	// SessionScanQR: engine is waiting for QR authentication.
	SessionScanQR SessionState = "SCAN_QR_CODE"
	// SessionConnected: authenticated and serving.
	SessionConnected SessionState = "CONNECTED"
	// SessionDisconnected: transport lost; may recover or escalate.
	SessionDisconnected SessionState = "DISCONNECTED"
	// SessionTerminated is terminal; the record is about to be deleted.
	SessionTerminated SessionState = "TERMINATED"
)

// IsTerminal returns true if the state is a final state.
func (s SessionState) IsTerminal() bool {
	return s == SessionTerminated
}

// IsServing reports whether an engine instance is expected to be attached.
func (s SessionState) IsServing() bool {
	switch s {
	case SessionScanQR, SessionConnected:
		return true
	}
	return false
}

// QRStatus tracks the out-of-band authentication challenge.
type QRStatus string

const (
	QRNotRequested         QRStatus = "NOT_REQUESTED"
	QRReadyForScan         QRStatus = "READY_FOR_SCAN"
	QRScannedAuthenticated QRStatus = "SCANNED_AUTHENTICATED"
	QRExpired              QRStatus = "EXPIRED"
)
