package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/viper"

	"github.com/hegelab/hegel/pkg/client"
	"github.com/hegelab/hegel/pkg/daemon"
	"github.com/hegelab/hegel/pkg/hegel/config"
)

// session is the instrument access surface the subcommands run
// against. It is backed either by the hegeld daemon or by an
// in-process service when running --local.
type session interface {
	List(ctx context.Context) ([]daemon.InstrumentInfo, error)
	Devices(ctx context.Context, instr string) ([]daemon.DeviceInfo, error)
	Get(ctx context.Context, device string) (*daemon.GetResult, error)
	Set(ctx context.Context, device string, value float64) error
	Snapshot(ctx context.Context) ([]string, error)
	SweepStart(ctx context.Context, p daemon.SweepStartParams) (string, error)
	SweepStatus(ctx context.Context, jobID string) (*daemon.JobStatus, error)
	SweepAbort(ctx context.Context, jobID string) error

	// Events subscribes to progress events for one job (empty means
	// all jobs) and returns the stream.
	Events(ctx context.Context, jobID string) (<-chan daemon.ProgressEvent, error)

	Close() error
}

// openSession connects to the daemon when one is available and falls
// back to direct instrument access otherwise.
func openSession(ctx context.Context, cfg *config.Config) (session, error) {
	if viper.GetBool("local") {
		printVerbose("opening instruments directly (--local)")
		return openLocal(ctx, cfg)
	}

	c, err := client.Connect(ctx, cfg)
	if err == nil {
		printVerbose("connected to daemon at %s", client.SocketPath(cfg))
		return &remoteSession{c: c}, nil
	}
	if !errors.Is(err, client.ErrDaemonNotRunning) {
		return nil, err
	}
	printVerbose("no daemon running, opening instruments directly")
	return openLocal(ctx, cfg)
}

// remoteSession forwards everything to a daemon connection.
type remoteSession struct {
	c *client.Client
}

func (s *remoteSession) List(ctx context.Context) ([]daemon.InstrumentInfo, error) {
	return s.c.List(ctx)
}

func (s *remoteSession) Devices(ctx context.Context, instr string) ([]daemon.DeviceInfo, error) {
	return s.c.Devices(ctx, instr)
}

func (s *remoteSession) Get(ctx context.Context, device string) (*daemon.GetResult, error) {
	return s.c.Get(ctx, device)
}

func (s *remoteSession) Set(ctx context.Context, device string, value float64) error {
	return s.c.Set(ctx, device, value)
}

func (s *remoteSession) Snapshot(ctx context.Context) ([]string, error) {
	return s.c.Snapshot(ctx)
}

func (s *remoteSession) SweepStart(ctx context.Context, p daemon.SweepStartParams) (string, error) {
	return s.c.SweepStart(ctx, p)
}

func (s *remoteSession) SweepStatus(ctx context.Context, jobID string) (*daemon.JobStatus, error) {
	return s.c.SweepStatus(ctx, jobID)
}

func (s *remoteSession) SweepAbort(ctx context.Context, jobID string) error {
	return s.c.SweepAbort(ctx, jobID)
}

func (s *remoteSession) Events(ctx context.Context, jobID string) (<-chan daemon.ProgressEvent, error) {
	if err := s.c.Subscribe(ctx, jobID); err != nil {
		return nil, err
	}
	return s.c.Events(), nil
}

func (s *remoteSession) Close() error { return s.c.Close() }

// localSession runs the daemon service in-process.
type localSession struct {
	svc *daemon.Service
}

func openLocal(ctx context.Context, cfg *config.Config) (*localSession, error) {
	svc, err := daemon.NewService(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	return &localSession{svc: svc}, nil
}

// handle dispatches through the service the same way the daemon does,
// so both paths exercise identical semantics.
func (s *localSession) handle(ctx context.Context, method string, params any) (any, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return s.svc.Handle(ctx, method, raw)
}

func (s *localSession) List(ctx context.Context) ([]daemon.InstrumentInfo, error) {
	res, err := s.handle(ctx, daemon.MethodList, nil)
	if err != nil {
		return nil, err
	}
	return res.([]daemon.InstrumentInfo), nil
}

func (s *localSession) Devices(ctx context.Context, instr string) ([]daemon.DeviceInfo, error) {
	res, err := s.handle(ctx, daemon.MethodDevices, daemon.DevicesParams{Instrument: instr})
	if err != nil {
		return nil, err
	}
	return res.([]daemon.DeviceInfo), nil
}

func (s *localSession) Get(ctx context.Context, device string) (*daemon.GetResult, error) {
	res, err := s.handle(ctx, daemon.MethodGet, daemon.GetParams{Device: device})
	if err != nil {
		return nil, err
	}
	return res.(*daemon.GetResult), nil
}

func (s *localSession) Set(ctx context.Context, device string, value float64) error {
	_, err := s.handle(ctx, daemon.MethodSet, daemon.SetParams{Device: device, Value: value})
	return err
}

func (s *localSession) Snapshot(ctx context.Context) ([]string, error) {
	res, err := s.handle(ctx, daemon.MethodSnapshot, nil)
	if err != nil {
		return nil, err
	}
	return res.(daemon.SnapshotResult).Lines, nil
}

func (s *localSession) SweepStart(ctx context.Context, p daemon.SweepStartParams) (string, error) {
	res, err := s.handle(ctx, daemon.MethodSweepStart, p)
	if err != nil {
		return "", err
	}
	return res.(*daemon.SweepStartResult).JobID, nil
}

func (s *localSession) SweepStatus(ctx context.Context, jobID string) (*daemon.JobStatus, error) {
	res, err := s.handle(ctx, daemon.MethodSweepStatus, daemon.JobParams{JobID: jobID})
	if err != nil {
		return nil, err
	}
	st := res.(daemon.JobStatus)
	return &st, nil
}

func (s *localSession) SweepAbort(ctx context.Context, jobID string) error {
	_, err := s.handle(ctx, daemon.MethodSweepAbort, daemon.JobParams{JobID: jobID})
	return err
}

func (s *localSession) Events(_ context.Context, jobID string) (<-chan daemon.ProgressEvent, error) {
	sub := s.svc.Broadcaster().Subscribe(jobID)
	if sub == nil {
		return nil, errors.New("service is shutting down")
	}
	return sub.Events, nil
}

func (s *localSession) Close() error { return s.svc.Close() }
