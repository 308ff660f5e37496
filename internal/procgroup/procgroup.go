// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts engine helper processes in their own process group
// and reaps the whole tree on close, so a browser spawned by an engine bridge
// never outlives its session.
package procgroup

import (
	"errors"
	"syscall"
)

// ErrKillFailed is returned when a group survives SIGKILL past the reap deadline.
var ErrKillFailed = errors.New("kill operation failed")

func isGone(err error) bool {
	return errors.Is(err, syscall.ESRCH) || errors.Is(err, errProcessDone)
}
