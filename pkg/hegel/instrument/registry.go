package instrument

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hegelab/hegel/pkg/hegel/config"
	"github.com/hegelab/hegel/pkg/hegel/logging"
	"github.com/hegelab/hegel/pkg/hegel/visa"
)

// ErrNotFound is returned when a registry lookup misses.
var ErrNotFound = errors.New("instrument not found")

// Driver builds an Instrument over an open VISA session.
type Driver func(ctx context.Context, name string, sess *visa.Session) (Instrument, error)

var (
	driverMu sync.RWMutex
	drivers  = make(map[string]Driver)
)

// RegisterDriver adds a named driver. Later registrations replace
// earlier ones, so applications can override the builtins.
func RegisterDriver(name string, d Driver) {
	driverMu.Lock()
	drivers[name] = d
	driverMu.Unlock()
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	driverMu.RLock()
	defer driverMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookupDriver(name string) (Driver, error) {
	driverMu.RLock()
	d, ok := drivers[name]
	driverMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown driver %q (have %v)", name, Drivers())
	}
	return d, nil
}

// Registry holds the open instruments of a session, addressable by
// name and by "instr.dev" device addresses.
type Registry struct {
	lockDir string
	logger  *logging.Logger

	mu          sync.RWMutex
	instruments map[string]Instrument
	order       []string
}

// NewRegistry builds an empty registry. lockDir is where resource lock
// files go; empty selects the default.
func NewRegistry(lockDir string) *Registry {
	return &Registry{
		lockDir:     lockDir,
		logger:      logging.Get("instrument"),
		instruments: make(map[string]Instrument),
	}
}

// Open connects the named instrument per its configuration: it dials
// the VISA resource and hands the session to the configured driver.
// With no driver configured, SIM resources use their model name and
// everything else falls back to the generic "scpi" driver.
func (r *Registry) Open(ctx context.Context, name string, cfg config.InstrumentConfig) (Instrument, error) {
	r.mu.RLock()
	_, exists := r.instruments[name]
	r.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("instrument %q already open", name)
	}

	res, err := visa.ParseResource(cfg.Resource)
	if err != nil {
		return nil, fmt.Errorf("instrument %q: %w", name, err)
	}
	driverName := cfg.Driver
	if driverName == "" {
		if res.Scheme == visa.SchemeSim {
			driverName = res.Host
		} else {
			driverName = "scpi"
		}
	}
	driver, err := lookupDriver(driverName)
	if err != nil {
		return nil, fmt.Errorf("instrument %q: %w", name, err)
	}

	opts := []visa.Option{visa.WithLockDir(r.lockDir)}
	if cfg.Timeout > 0 {
		opts = append(opts, visa.WithTimeout(cfg.Timeout))
	}
	if cfg.Termination != "" {
		opts = append(opts, visa.WithTermination(terminationByte(cfg.Termination)))
	}
	sess, err := visa.Open(ctx, cfg.Resource, opts...)
	if err != nil {
		return nil, fmt.Errorf("instrument %q: %w", name, err)
	}
	in, err := driver(ctx, name, sess)
	if err != nil {
		sess.Close()
		return nil, err
	}

	r.mu.Lock()
	r.instruments[name] = in
	r.order = append(r.order, name)
	r.mu.Unlock()

	r.logger.Info("instrument opened",
		"name", name, "resource", cfg.Resource, "driver", driverName,
		"model", in.IDN().Model)
	return in, nil
}

// terminationByte maps the config spelling of a termination character
// onto the wire byte.
func terminationByte(s string) byte {
	switch s {
	case "lf", "\n", "\\n":
		return '\n'
	case "cr", "\r", "\\r":
		return '\r'
	default:
		return s[0]
	}
}

// OpenAll opens every configured instrument, stopping at the first
// failure and closing anything opened so far.
func (r *Registry) OpenAll(ctx context.Context, cfgs map[string]config.InstrumentConfig) error {
	names := make([]string, 0, len(cfgs))
	for n := range cfgs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if _, err := r.Open(ctx, n, cfgs[n]); err != nil {
			r.CloseAll()
			return err
		}
	}
	return nil
}

// Get returns the named instrument.
func (r *Registry) Get(name string) (Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.instruments[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return in, nil
}

// List returns the open instruments in open order.
func (r *Registry) List() []Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Instrument, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.instruments[n])
	}
	return out
}

// FindDevice resolves an "instr.dev" address to its device.
func (r *Registry) FindDevice(addr string) (*Device, error) {
	instr, dev, err := SplitAddress(addr)
	if err != nil {
		return nil, err
	}
	in, err := r.Get(instr)
	if err != nil {
		return nil, err
	}
	return in.Device(dev)
}

// Snapshot collects the header lines of every open instrument, in
// open order. Sweep data files embed this above the column header.
func (r *Registry) Snapshot(ctx context.Context) ([]string, error) {
	var lines []string
	for _, in := range r.List() {
		l, err := in.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", in.Name(), err)
		}
		lines = append(lines, l...)
	}
	return lines, nil
}

// Close closes and removes one instrument.
func (r *Registry) Close(name string) error {
	r.mu.Lock()
	in, ok := r.instruments[name]
	if ok {
		delete(r.instruments, name)
		for i, n := range r.order {
			if n == name {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return in.Close()
}

// CloseAll closes every instrument, keeping the first error.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	ins := make([]Instrument, 0, len(r.order))
	for _, n := range r.order {
		ins = append(ins, r.instruments[n])
	}
	r.instruments = make(map[string]Instrument)
	r.order = nil
	r.mu.Unlock()

	var first error
	for _, in := range ins {
		if err := in.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
