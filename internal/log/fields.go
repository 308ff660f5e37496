// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldHandle        = "handle"
	FieldGeneration    = "generation"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldQRStatus = "qr_status"
	FieldPolicy   = "policy"

	// Health fields
	FieldFailureCount = "failure_count"

	// HTTP fields
	FieldMethod   = "method"
	FieldPath     = "path"
	FieldRoute    = "route"
	FieldStatus   = "status"
	FieldDuration = "duration"
	FieldRemote   = "remote_addr"
)
