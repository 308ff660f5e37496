// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	xglog "github.com/ManuGH/sessiond/internal/log"
)

// Terminate stops a process group: SIGTERM, wait up to grace for waitCh, then
// SIGKILL and wait up to grace again. waitCh must deliver the result of cmd.Wait.
// It returns the wait error, or ErrKillFailed if the process never reported exit.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	err := Kill(cmd, syscall.SIGTERM)
	recordSignal("SIGTERM", err)

	select {
	case werr := <-waitCh:
		recordWait(false, werr)
		return werr
	case <-time.After(grace):
	}

	xglog.L().Warn().
		Int(xglog.FieldPID, cmd.Process.Pid).
		Dur("grace", grace).
		Msg("SIGTERM grace period exceeded, sending SIGKILL to process group")

	err = Kill(cmd, syscall.SIGKILL)
	recordSignal("SIGKILL", err)

	select {
	case werr := <-waitCh:
		recordWait(true, werr)
		return werr
	case <-time.After(grace):
		return ErrKillFailed
	}
}
