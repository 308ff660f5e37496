// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import "errors"

var (
	// ErrEngineClosed is returned by Probe after Close or after the instance exited.
	ErrEngineClosed = errors.New("engine instance closed")

	// ErrLaunchPermanent marks a launch error that retrying cannot fix (bad binary, bad config).
	ErrLaunchPermanent = errors.New("permanent launch failure")
)
