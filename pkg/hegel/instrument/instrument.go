package instrument

import (
	"context"
	"fmt"
	"strings"

	"github.com/hegelab/hegel/pkg/hegel/scpi"
	"github.com/hegelab/hegel/pkg/hegel/visa"
)

// Instrument is a connected instrument exposing named devices.
type Instrument interface {
	// Name returns the registry name the instrument was opened under.
	Name() string

	// Resource returns the VISA resource string it is connected to.
	Resource() string

	// IDN returns the parsed identification, zero-valued if unknown.
	IDN() scpi.IDN

	// Devices returns the devices in declaration order.
	Devices() []*Device

	// Device looks a device up by its short name.
	Device(name string) (*Device, error)

	// Snapshot reads every readable device and returns header lines
	// of the form "name.dev = value unit". Used by data file headers.
	Snapshot(ctx context.Context) ([]string, error)

	Close() error
}

// DeviceCommand declares one device of a SCPI instrument as a pair of
// wire commands. Get is sent as-is and the reply parsed as a float;
// Set is a fmt verb string receiving the formatted value.
type DeviceCommand struct {
	Name   string
	Get    string // e.g. "SOUR:LEV?"; empty means write-only
	Set    string // e.g. "SOUR:LEV %s"; empty means read-only
	Unit   string
	Min    *float64
	Max    *float64
	Setget bool
}

// SCPIInstrument is a generic VISA-backed instrument whose devices map
// onto SCPI command pairs. Every set is followed by an error-queue
// check so instrument-side rejections surface as Go errors.
type SCPIInstrument struct {
	name    string
	sess    *visa.Session
	idn     scpi.IDN
	devices []*Device
	byName  map[string]*Device
}

// NewSCPI connects the instrument: identifies it, clears the error
// queue and declares its devices.
func NewSCPI(ctx context.Context, name string, sess *visa.Session, cmds []DeviceCommand) (*SCPIInstrument, error) {
	idn, err := scpi.QueryIDN(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("instrument %s: %w", name, err)
	}
	if err := sess.Write(ctx, "*CLS"); err != nil {
		return nil, fmt.Errorf("instrument %s: %w", name, err)
	}
	in := &SCPIInstrument{
		name:   name,
		sess:   sess,
		idn:    idn,
		byName: make(map[string]*Device, len(cmds)),
	}
	for _, c := range cmds {
		in.addDevice(c)
	}
	return in, nil
}

func (in *SCPIInstrument) addDevice(c DeviceCommand) {
	spec := DeviceSpec{
		Name:   c.Name,
		Unit:   c.Unit,
		Min:    c.Min,
		Max:    c.Max,
		Setget: c.Setget,
	}
	if c.Get != "" {
		q := c.Get
		spec.Get = func(ctx context.Context) (float64, error) {
			reply, err := in.sess.Query(ctx, q)
			if err != nil {
				return 0, err
			}
			return scpi.ParseFloat(reply)
		}
	}
	if c.Set != "" {
		verb := c.Set
		spec.Set = func(ctx context.Context, v float64) error {
			if err := in.sess.Write(ctx, fmt.Sprintf(verb, scpi.FormatFloat(v))); err != nil {
				return err
			}
			return scpi.CheckErrors(ctx, in.sess)
		}
	}
	d := NewDevice(in.name, spec)
	in.devices = append(in.devices, d)
	in.byName[c.Name] = d
}

// Name implements Instrument.
func (in *SCPIInstrument) Name() string { return in.name }

// Resource implements Instrument.
func (in *SCPIInstrument) Resource() string { return in.sess.Resource().String() }

// IDN implements Instrument.
func (in *SCPIInstrument) IDN() scpi.IDN { return in.idn }

// Session exposes the underlying VISA session for raw queries.
func (in *SCPIInstrument) Session() *visa.Session { return in.sess }

// Devices implements Instrument.
func (in *SCPIInstrument) Devices() []*Device {
	out := make([]*Device, len(in.devices))
	copy(out, in.devices)
	return out
}

// Device implements Instrument.
func (in *SCPIInstrument) Device(name string) (*Device, error) {
	d, ok := in.byName[name]
	if !ok {
		return nil, fmt.Errorf("instrument %s has no device %q", in.name, name)
	}
	return d, nil
}

// Snapshot implements Instrument.
func (in *SCPIInstrument) Snapshot(ctx context.Context) ([]string, error) {
	lines := make([]string, 0, len(in.devices)+1)
	lines = append(lines, fmt.Sprintf("%s = %s", in.name, in.idn))
	for _, d := range in.devices {
		if !d.Readable() {
			continue
		}
		v, err := d.Get(ctx)
		if err != nil {
			return nil, err
		}
		line := fmt.Sprintf("%s = %s", d.FullName(), scpi.FormatFloat(v))
		if u := d.Unit(); u != "" {
			line += " " + u
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Close releases the VISA session.
func (in *SCPIInstrument) Close() error { return in.sess.Close() }

// SplitAddress splits an "instr.dev" address into its two parts.
func SplitAddress(addr string) (instr, dev string, err error) {
	i := strings.IndexByte(addr, '.')
	if i <= 0 || i == len(addr)-1 {
		return "", "", fmt.Errorf("bad device address %q, want instr.dev", addr)
	}
	return addr[:i], addr[i+1:], nil
}
