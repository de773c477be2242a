// Package process has small helpers for inspecting other processes.
package process

import (
	"os"
	"syscall"
)

// IsAlive reports whether a process with the given PID exists. It sends
// signal 0, which performs the existence check without delivering
// anything. EPERM still means the process is there, just owned by
// someone else.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	// os.FindProcess never fails on Unix.
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = proc.Signal(syscall.Signal(0))
	return err == nil || os.IsPermission(err)
}
