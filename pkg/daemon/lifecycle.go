// Package daemon implements hegeld, the session daemon that owns the
// instrument connections so several client processes can share them.
// Clients talk to it over a Unix socket carrying JSON frames on a
// websocket; sweep jobs run in the background and stream progress
// events to subscribers.
package daemon

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrDaemonAlreadyRunning is returned when starting a daemon while
// another one holds the PID file.
var ErrDaemonAlreadyRunning = errors.New("daemon already running")

// WritePIDFile writes the current process ID to a file.
func WritePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ReadPIDFile reads a PID from a file.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}
	return pid, nil
}

// RemovePIDFile removes the PID file. A missing file is not an error.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsRunning reports whether the process named by the PID file is
// alive. A stale file from a crashed daemon reports false, so the next
// start can recover.
func IsRunning(pidPath string) bool {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without delivering anything.
	return process.Signal(syscall.Signal(0)) == nil
}

// Stop signals the daemon named by the PID file to terminate.
func Stop(pidPath string) error {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return err
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Signal(syscall.SIGTERM)
}
