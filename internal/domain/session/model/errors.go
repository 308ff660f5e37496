// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "errors"

// Error taxonomy shared by the store, the controller and the HTTP layer.
var (
	ErrInvalidID      = errors.New("invalid session id")
	ErrNotFound       = errors.New("session not found")
	ErrAlreadyExists  = errors.New("session already exists")
	ErrEngineFailure  = errors.New("engine failure")
	ErrTimeout        = errors.New("operation timed out")
	ErrShuttingDown   = errors.New("session manager is shutting down")
	ErrStaleOperation = errors.New("session was superseded")
)
