// Package instrument provides the device/instrument model: named
// settable and readable values on instruments, a registry addressing
// them as "instr.dev" strings, parallel (async) readout groups, and
// the rate-limited Move ramp.
package instrument

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrNotSettable is returned when Set is called on a read-only device.
var ErrNotSettable = errors.New("device is not settable")

// ErrNotReadable is returned when Get is called on a write-only device.
var ErrNotReadable = errors.New("device is not readable")

// Getter reads the device value from the instrument.
type Getter func(ctx context.Context) (float64, error)

// Setter writes the device value to the instrument.
type Setter func(ctx context.Context, v float64) error

// DeviceSpec declares a device when building an instrument.
type DeviceSpec struct {
	Name    string
	Unit    string
	Doc     string
	Min     *float64  // nil means unbounded
	Max     *float64  // nil means unbounded
	Choices []float64 // non-empty restricts values to the listed set

	// Setget re-reads the value after every set, so the cache holds
	// what the instrument actually applied (it may round).
	Setget bool

	Get Getter
	Set Setter
}

// Device is one named value on an instrument. All methods are safe for
// concurrent use; the last value seen on the wire is cached.
type Device struct {
	spec  DeviceSpec
	instr string

	mu       sync.Mutex
	cache    float64
	cacheAt  time.Time
	hasCache bool
}

// NewDevice builds a device owned by the named instrument.
func NewDevice(instr string, spec DeviceSpec) *Device {
	return &Device{spec: spec, instr: instr}
}

// Name returns the device name within its instrument.
func (d *Device) Name() string { return d.spec.Name }

// Unit returns the device's unit string, possibly empty.
func (d *Device) Unit() string { return d.spec.Unit }

// Instrument returns the owning instrument's name.
func (d *Device) Instrument() string { return d.instr }

// FullName returns the registry-wide "instr.dev" name.
func (d *Device) FullName() string {
	return d.instr + "." + d.spec.Name
}

// Settable reports whether the device accepts Set.
func (d *Device) Settable() bool { return d.spec.Set != nil }

// Readable reports whether the device accepts Get.
func (d *Device) Readable() bool { return d.spec.Get != nil }

// Check validates a value against the device limits without touching
// the instrument.
func (d *Device) Check(v float64) error {
	if math.IsNaN(v) {
		return fmt.Errorf("%s: value is NaN", d.FullName())
	}
	if d.spec.Min != nil && v < *d.spec.Min {
		return fmt.Errorf("%s: %g below minimum %g", d.FullName(), v, *d.spec.Min)
	}
	if d.spec.Max != nil && v > *d.spec.Max {
		return fmt.Errorf("%s: %g above maximum %g", d.FullName(), v, *d.spec.Max)
	}
	if len(d.spec.Choices) > 0 {
		for _, c := range d.spec.Choices {
			if v == c {
				return nil
			}
		}
		return fmt.Errorf("%s: %g not in allowed set %v", d.FullName(), v, d.spec.Choices)
	}
	return nil
}

// Get reads the value from the instrument and refreshes the cache.
func (d *Device) Get(ctx context.Context) (float64, error) {
	if d.spec.Get == nil {
		return 0, fmt.Errorf("%s: %w", d.FullName(), ErrNotReadable)
	}
	v, err := d.spec.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", d.FullName(), err)
	}
	d.setCache(v)
	return v, nil
}

// Set validates and writes the value. With Setget the instrument is
// re-read afterwards so the cache reflects what was actually applied;
// otherwise the requested value is cached.
func (d *Device) Set(ctx context.Context, v float64) error {
	if d.spec.Set == nil {
		return fmt.Errorf("%s: %w", d.FullName(), ErrNotSettable)
	}
	if err := d.Check(v); err != nil {
		return err
	}
	if err := d.spec.Set(ctx, v); err != nil {
		return fmt.Errorf("set %s: %w", d.FullName(), err)
	}
	if d.spec.Setget && d.spec.Get != nil {
		if _, err := d.Get(ctx); err != nil {
			return err
		}
		return nil
	}
	d.setCache(v)
	return nil
}

// Cache returns the last value seen on the wire and whether one exists.
func (d *Device) Cache() (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cache, d.hasCache
}

// CacheTime returns when the cache was last refreshed.
func (d *Device) CacheTime() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cacheAt
}

func (d *Device) setCache(v float64) {
	d.mu.Lock()
	d.cache = v
	d.cacheAt = time.Now()
	d.hasCache = true
	d.mu.Unlock()
}
