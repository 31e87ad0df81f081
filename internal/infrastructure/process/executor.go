// Package process wraps os/exec for the two shapes of child the module
// runs: foreground tool invocations that return an exit code, and detached
// background daemons that outlive this process.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	gops "github.com/shirou/gopsutil/v4/process"
)

// RunOptions configures a foreground run.
type RunOptions struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
	Env    []string // nil inherits the parent environment
	Dir    string
}

// Run executes the command and blocks until it exits, returning its exit
// code. A non-zero exit is not an error; failures to start are.
func Run(ctx context.Context, name string, args []string, opts RunOptions) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	cmd.Stdin = opts.Stdin
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("failed to run %s: %w", name, err)
	}
	return 0, nil
}

// IsNotFound reports whether err means the executable could not be located
// on the path.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}

// StartDetached spawns the command so it survives this process's exit, with
// combined output redirected to logPath (truncated per start). The returned
// pid is recorded by the caller; the child is released immediately and
// never waited on.
func StartDetached(name string, args []string, extraEnv []string, logPath string) (int, error) {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open proxy log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(name, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.Env = append(os.Environ(), extraEnv...)
	cmd.SysProcAttr = detachedSysProcAttr()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", name, err)
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("failed to release %s: %w", name, err)
	}
	return pid, nil
}

// Alive reports whether a process with the given pid exists. Advisory only:
// pids are reused by the OS, so a true result can name an unrelated
// process. Callers pair this with a health probe.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := gops.PidExists(int32(pid))
	return err == nil && exists
}
