// Package main provides the entry point for hegeld, the session
// daemon that owns instrument connections and runs sweep jobs for the
// hegel CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hegelab/hegel/pkg/daemon"
	"github.com/hegelab/hegel/pkg/hegel/config"
	"github.com/hegelab/hegel/pkg/hegel/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hegeld: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Path:       cfg.Logging.Path,
		Components: cfg.Logging.Components,
	}); err != nil {
		return err
	}
	defer logging.Close()
	logger := logging.Get("daemon")

	if err := config.EnsureDataDir(); err != nil {
		return err
	}
	if err := config.EnsureStateDir(); err != nil {
		return err
	}

	socket := cfg.Daemon.SocketPath
	if socket == "" {
		socket = config.DefaultSocketPath()
	}
	pidPath := cfg.Daemon.PIDPath
	if pidPath == "" {
		pidPath = config.DefaultPIDPath()
	}
	statusPath := daemon.StatusPath(config.StateDir())

	if daemon.IsRunning(pidPath) {
		return daemon.ErrDaemonAlreadyRunning
	}
	if err := daemon.WritePIDFile(pidPath); err != nil {
		return err
	}
	defer func() {
		if err := daemon.RemovePIDFile(pidPath); err != nil {
			logger.Warn("remove pid file", "error", err)
		}
		if err := daemon.RemoveStatus(statusPath); err != nil {
			logger.Warn("remove status file", "error", err)
		}
	}()

	// shutdown is hooked to both signals and the shutdown method.
	ctx, shutdown := context.WithCancel(context.Background())
	defer shutdown()

	svc, err := daemon.NewService(ctx, cfg, shutdown)
	if err != nil {
		_ = daemon.WriteStatusError(statusPath, err)
		return err
	}

	srv := daemon.NewServer(svc, socket)
	if err := srv.Start(); err != nil {
		_ = svc.Close()
		_ = daemon.WriteStatusError(statusPath, err)
		return err
	}
	if err := daemon.WriteStatusReady(statusPath, socket); err != nil {
		logger.Warn("write status file", "error", err)
	}
	logger.Info("hegeld ready", "socket", socket, "pid", os.Getpid())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig)
	case <-ctx.Done():
		logger.Info("shutting down", "reason", "client request")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		logger.Warn("server stop", "error", err)
	}
	if err := svc.Close(); err != nil {
		logger.Warn("service close", "error", err)
	}
	return nil
}
