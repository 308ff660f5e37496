// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package procgroup

import (
	"os"
	"os/exec"
	"syscall"
)

var errProcessDone = os.ErrProcessDone

// Set is a no-op on Windows.
func Set(cmd *exec.Cmd) {}

// Kill maps SIGKILL to Process.Kill. Other signals are ignored because Windows
// has no graceful equivalent; Terminate escalates after the grace period anyway.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if sig == syscall.SIGKILL {
		if err := cmd.Process.Kill(); err != nil && !isGone(err) {
			return err
		}
	}
	return nil
}
