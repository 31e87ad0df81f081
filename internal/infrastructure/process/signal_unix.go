//go:build !windows

package process

import (
	"errors"
	"os"
	"syscall"
)

// Terminate sends SIGTERM to pid.
func Terminate(pid int) error {
	return signalPid(pid, syscall.SIGTERM)
}

// Kill sends SIGKILL to pid.
func Kill(pid int) error {
	return signalPid(pid, syscall.SIGKILL)
}

func signalPid(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}

// IsGone reports whether a signal error means the process no longer
// exists, which callers treat as already-stopped.
func IsGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH)
}
