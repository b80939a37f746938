package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/hegelab/hegel/pkg/daemon"
	"github.com/hegelab/hegel/pkg/hegel/config"
)

// startupTimeout is how long we wait for a freshly spawned daemon to
// report ready through its status file.
const startupTimeout = 10 * time.Second

// ErrDaemonNotRunning is returned by Connect when no daemon is up and
// auto-start is disabled.
var ErrDaemonNotRunning = errors.New("daemon is not running (start it with 'hegel daemon start' or enable daemon.auto_start)")

// SocketPath resolves the daemon socket for cfg.
func SocketPath(cfg *config.Config) string {
	if cfg.Daemon.SocketPath != "" {
		return cfg.Daemon.SocketPath
	}
	return config.DefaultSocketPath()
}

// PIDPath resolves the daemon PID file for cfg.
func PIDPath(cfg *config.Config) string {
	if cfg.Daemon.PIDPath != "" {
		return cfg.Daemon.PIDPath
	}
	return config.DefaultPIDPath()
}

// Connect dials the daemon, spawning one first when auto-start is
// enabled and nothing is listening.
func Connect(ctx context.Context, cfg *config.Config) (*Client, error) {
	socket := SocketPath(cfg)

	if daemon.IsRunning(PIDPath(cfg)) {
		return Dial(ctx, socket)
	}
	if !cfg.Daemon.AutoStart {
		return nil, ErrDaemonNotRunning
	}
	if err := StartDaemon(ctx, cfg); err != nil {
		return nil, err
	}
	return Dial(ctx, socket)
}

// StartDaemon spawns hegeld detached and waits for its status file to
// report ready. It is a no-op when a daemon already runs.
func StartDaemon(ctx context.Context, cfg *config.Config) error {
	if daemon.IsRunning(PIDPath(cfg)) {
		return daemon.ErrDaemonAlreadyRunning
	}

	bin := cfg.Daemon.BinaryPath
	if bin == "" {
		found, err := exec.LookPath("hegeld")
		if err != nil {
			return fmt.Errorf("hegeld binary not found in PATH (set daemon.binary_path): %w", err)
		}
		bin = found
	}

	if err := config.EnsureStateDir(); err != nil {
		return err
	}
	statusPath := daemon.StatusPath(config.StateDir())
	// Stale status from a previous run would satisfy the ready poll.
	_ = daemon.RemoveStatus(statusPath)

	cmd := exec.Command(bin)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", bin, err)
	}
	// The daemon outlives us. Reap it in the background so it never
	// turns into a zombie while this process is still around.
	go func() { _ = cmd.Wait() }()

	return waitReady(ctx, statusPath)
}

func waitReady(ctx context.Context, statusPath string) error {
	deadline := time.Now().Add(startupTimeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		st, err := daemon.ReadStatus(statusPath)
		if err == nil {
			switch st.Status {
			case "ready":
				return nil
			case "error":
				return fmt.Errorf("daemon failed to start: %s", st.Error)
			}
		} else if !os.IsNotExist(err) {
			return err
		}

		if time.Now().After(deadline) {
			return errors.New("timed out waiting for daemon to become ready")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
