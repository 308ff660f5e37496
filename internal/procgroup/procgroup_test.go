// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build linux

package procgroup

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGroup(t *testing.T, script string) (*exec.Cmd, <-chan error) {
	t.Helper()
	cmd := exec.Command("sh", "-c", script)
	Set(cmd)
	require.NoError(t, cmd.Start())

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	require.NoError(t, err)
	require.Equal(t, cmd.Process.Pid, pgid, "process should lead its own group")
	return cmd, waitCh
}

func TestTerminate_ReapsWholeGroup(t *testing.T) {
	cmd, waitCh := startGroup(t, "sleep 30 & sleep 30")
	time.Sleep(100 * time.Millisecond)
	pgid := cmd.Process.Pid

	err := Terminate(cmd, waitCh, 2*time.Second)
	require.Error(t, err, "sh killed by SIGTERM reports a non-zero exit")

	time.Sleep(50 * time.Millisecond)
	err = syscall.Kill(-pgid, syscall.Signal(0))
	if err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
	assert.ErrorIs(t, err, syscall.ESRCH, "process group should be gone")
}

func TestTerminate_EscalatesToSIGKILL(t *testing.T) {
	cmd, waitCh := startGroup(t, "trap '' TERM; while :; do sleep 0.05; done")
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	err := Terminate(cmd, waitCh, 200*time.Millisecond)
	require.Error(t, err)

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	assert.Equal(t, syscall.SIGKILL, status.Signal())
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestTerminate_AlreadyExited(t *testing.T) {
	cmd, waitCh := startGroup(t, "exit 0")
	// Let the process finish first; the wait result stays buffered.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, Terminate(cmd, waitCh, time.Second))
}

func TestKill_NilCommand(t *testing.T) {
	assert.NoError(t, Kill(nil, syscall.SIGTERM))
	assert.NoError(t, Terminate(nil, nil, time.Millisecond))
}
