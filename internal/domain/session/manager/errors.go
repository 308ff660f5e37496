// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import "github.com/ManuGH/sessiond/internal/domain/session/model"

// Re-exported so callers of the controller need not import model for error matching.
var (
	ErrInvalidID     = model.ErrInvalidID
	ErrNotFound      = model.ErrNotFound
	ErrAlreadyExists = model.ErrAlreadyExists
	ErrEngineFailure = model.ErrEngineFailure
	ErrTimeout       = model.ErrTimeout
	ErrShuttingDown  = model.ErrShuttingDown
)
