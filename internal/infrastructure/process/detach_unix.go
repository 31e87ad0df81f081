//go:build !windows

package process

import "syscall"

// detachedSysProcAttr places the child in its own session so it is not
// delivered the parent's terminal signals and survives the parent's exit.
func detachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
