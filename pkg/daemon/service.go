package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hegelab/hegel/pkg/hegel/config"
	"github.com/hegelab/hegel/pkg/hegel/instrument"
	"github.com/hegelab/hegel/pkg/hegel/logging"
	"github.com/hegelab/hegel/pkg/hegel/store"
	"github.com/hegelab/hegel/pkg/hegel/sweep"
	"github.com/hegelab/hegel/pkg/hegel/trace"
)

// Service implements the daemon methods over the shared instrument
// registry. One Service serves every connection.
type Service struct {
	cfg      *config.Config
	registry *instrument.Registry
	history  *store.Store // nil when history is disabled
	jobs     *Jobs
	bcast    *Broadcaster
	namer    *trace.Namer
	logger   *logging.Logger
	started  time.Time

	// shutdown is called when a client asks the daemon to exit.
	shutdown func()
}

// NewService opens the configured instruments and the run history.
func NewService(ctx context.Context, cfg *config.Config, shutdown func()) (*Service, error) {
	registry := instrument.NewRegistry(cfg.LockDir)
	if err := registry.OpenAll(ctx, cfg.Instruments); err != nil {
		return nil, err
	}

	var history *store.Store
	if cfg.History.Enabled {
		h, err := store.Open(cfg.History.Path)
		if err != nil {
			registry.CloseAll()
			return nil, err
		}
		history = h
	}

	return &Service{
		cfg:      cfg,
		registry: registry,
		history:  history,
		jobs:     NewJobs(),
		bcast:    NewBroadcaster(),
		namer:    trace.DefaultNamer,
		logger:   logging.Get("daemon"),
		started:  time.Now(),
		shutdown: shutdown,
	}, nil
}

// Close aborts running jobs and releases the instruments.
func (s *Service) Close() error {
	s.jobs.AbortAll()
	s.bcast.Close()
	err := s.registry.CloseAll()
	if s.history != nil {
		if cerr := s.history.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Broadcaster exposes the progress pub/sub to the server layer.
func (s *Service) Broadcaster() *Broadcaster { return s.bcast }

// Handle dispatches one request and returns the result to encode.
func (s *Service) Handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case MethodList:
		return s.list(), nil
	case MethodDevices:
		var p DevicesParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		return s.devices(p)
	case MethodGet:
		var p GetParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		return s.get(ctx, p)
	case MethodSet:
		var p SetParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		return struct{}{}, s.set(ctx, p)
	case MethodSnapshot:
		lines, err := s.registry.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return SnapshotResult{Lines: lines}, nil
	case MethodSweepStart:
		var p SweepStartParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		return s.sweepStart(p)
	case MethodSweepStatus:
		var p JobParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		job, err := s.jobs.Get(p.JobID)
		if err != nil {
			return nil, err
		}
		return job.Status(), nil
	case MethodSweepAbort:
		var p JobParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		job, err := s.jobs.Get(p.JobID)
		if err != nil {
			return nil, err
		}
		job.Abort()
		return struct{}{}, nil
	case MethodStatus:
		return s.status(), nil
	case MethodShutdown:
		s.logger.Info("shutdown requested by client")
		if s.shutdown != nil {
			go s.shutdown()
		}
		return struct{}{}, nil
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("bad params: %w", err)
	}
	return nil
}

func (s *Service) list() []InstrumentInfo {
	ins := s.registry.List()
	out := make([]InstrumentInfo, 0, len(ins))
	for _, in := range ins {
		idn := in.IDN()
		info := InstrumentInfo{
			Name:     in.Name(),
			Resource: in.Resource(),
			Vendor:   idn.Vendor,
			Model:    idn.Model,
			Serial:   idn.Serial,
			Firmware: idn.Firmware,
		}
		for _, d := range in.Devices() {
			info.Devices = append(info.Devices, d.Name())
		}
		out = append(out, info)
	}
	return out
}

func (s *Service) devices(p DevicesParams) ([]DeviceInfo, error) {
	in, err := s.registry.Get(p.Instrument)
	if err != nil {
		return nil, err
	}
	devs := in.Devices()
	out := make([]DeviceInfo, 0, len(devs))
	for _, d := range devs {
		out = append(out, DeviceInfo{
			Name:     d.Name(),
			Unit:     d.Unit(),
			Readable: d.Readable(),
			Settable: d.Settable(),
		})
	}
	return out, nil
}

func (s *Service) get(ctx context.Context, p GetParams) (*GetResult, error) {
	dev, err := s.registry.FindDevice(p.Device)
	if err != nil {
		return nil, err
	}
	v, err := dev.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &GetResult{Device: dev.FullName(), Value: v, Unit: dev.Unit()}, nil
}

func (s *Service) set(ctx context.Context, p SetParams) error {
	dev, err := s.registry.FindDevice(p.Device)
	if err != nil {
		return err
	}
	return dev.Set(ctx, p.Value)
}

func (s *Service) status() StatusResult {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return StatusResult{
		PID:         os.Getpid(),
		Uptime:      time.Since(s.started),
		Instruments: len(s.registry.List()),
		Jobs:        s.jobs.Counts(),
		Subscribers: s.bcast.SubscriberCount(),
		MemAlloc:    mem.HeapAlloc,
	}
}

// sweepStart validates the request, creates the data file and runs the
// sweep in the background.
func (s *Service) sweepStart(p SweepStartParams) (*SweepStartResult, error) {
	dev, err := s.registry.FindDevice(p.Device)
	if err != nil {
		return nil, err
	}
	out := make([]*instrument.Device, 0, len(p.Out))
	for _, addr := range p.Out {
		d, err := s.registry.FindDevice(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	var span sweep.Span
	if p.Log {
		span, err = sweep.Logspace(p.Start, p.Stop, p.Points)
	} else {
		span, err = sweep.Linspace(p.Start, p.Stop, p.Points)
	}
	if err != nil {
		return nil, err
	}

	beforeWait := s.cfg.Sweep.BeforeWait
	if p.BeforeWait != nil {
		beforeWait = time.Duration(*p.BeforeWait * float64(time.Second))
	}
	opts := sweep.Options{
		Device:     dev,
		Span:       span,
		Out:        out,
		BeforeWait: beforeWait,
		UpDown:     p.UpDown,
		Reset:      p.Reset,
		Async:      p.Async,
	}

	tmpl := p.Filename
	if tmpl == "" {
		tmpl = s.cfg.Sweep.Filename
	}
	path, _, err := s.namer.Process(filepath.Join(s.cfg.DataPath, tmpl), time.Now())
	if err != nil {
		return nil, err
	}

	snapshot, err := s.registry.Snapshot(context.Background())
	if err != nil {
		return nil, err
	}
	w, err := trace.NewWriter(path, trace.Header{
		Title:    "hegel sweep",
		Snapshot: snapshot,
		Options:  opts.Describe(),
		Columns:  opts.Columns(),
	})
	if err != nil {
		return nil, err
	}

	job, runCtx := s.jobs.Create(context.Background(), "sweep")
	job.SetFilename(path)
	opts.OnProgress = func(prog sweep.Progress) {
		job.SetProgress(prog)
		s.bcast.Notify(ProgressEvent{JobID: job.ID, State: StateRunning, Progress: prog})
	}

	go s.runSweep(runCtx, job, w, opts)
	s.logger.Info("sweep job started", "job", job.ID, "device", dev.FullName(),
		"points", span.Points(), "file", path)
	return &SweepStartResult{JobID: job.ID}, nil
}

func (s *Service) runSweep(ctx context.Context, job *Job, w *trace.Writer, opts sweep.Options) {
	aw := trace.NewAsyncWriter(w, 0)
	res, runErr := sweep.Run(ctx, aw, opts)
	if cerr := aw.Close(); runErr == nil {
		runErr = cerr
	}
	if res == nil {
		res = &sweep.Result{}
	}
	job.Finish(runErr)

	st := job.Status()
	s.bcast.Notify(ProgressEvent{JobID: job.ID, State: st.State, Progress: st.Progress})
	s.logger.Info("sweep job finished", "job", job.ID, "state", st.State, "points", res.Points)

	if s.history == nil || res.Points == 0 {
		return
	}
	sum, err := store.ChecksumFile(w.Path())
	if err != nil {
		s.logger.Warn("checksum data file", "file", w.Path(), "error", err)
	}
	devices := []string{opts.Device.FullName()}
	for _, d := range opts.Out {
		devices = append(devices, d.FullName())
	}
	run := &store.Run{
		Kind:     "sweep",
		Devices:  devices,
		Filename: w.Path(),
		Points:   res.Points,
		Start:    res.Start,
		End:      res.End,
		Checksum: sum,
	}
	if err := s.history.Add(run); err != nil {
		s.logger.Warn("record run history", "error", err)
	}
}
