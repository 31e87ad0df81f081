//go:build windows

package process

import (
	"errors"
	"os"
	"syscall"
)

// Terminate ends the process. Windows has no graceful termination signal
// for detached children, so this is the same hard stop as Kill.
func Terminate(pid int) error {
	return Kill(pid)
}

// Kill forcefully ends the process.
func Kill(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

// IsGone reports whether a signal error means the process no longer exists.
func IsGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) ||
		errors.Is(err, syscall.ERROR_INVALID_PARAMETER)
}
