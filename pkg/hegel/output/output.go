// Package output provides formatters for displaying instruments,
// readings, data files and run history in various output formats
// (pretty, plain, json, yaml).
//
// The package uses a registry pattern so formatters are selected at
// runtime from the --output flag:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Instrument describes one configured instrument for display.
type Instrument struct {
	// Name is the registry name from the config.
	Name string `json:"name" yaml:"name"`

	// Resource is the VISA resource string.
	Resource string `json:"resource" yaml:"resource"`

	// Driver is the driver the instrument was opened with.
	Driver string `json:"driver" yaml:"driver"`

	// Vendor, Model, Serial and Firmware come from *IDN?.
	Vendor   string `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	Serial   string `json:"serial,omitempty" yaml:"serial,omitempty"`
	Firmware string `json:"firmware,omitempty" yaml:"firmware,omitempty"`

	// Devices lists the device names the driver declares.
	Devices []string `json:"devices,omitempty" yaml:"devices,omitempty"`
}

// Reading is one measured or cached device value.
type Reading struct {
	// Device is the full "instr.dev" name.
	Device string `json:"device" yaml:"device"`

	Value float64 `json:"value" yaml:"value"`

	// Unit is the device unit, possibly empty.
	Unit string `json:"unit,omitempty" yaml:"unit,omitempty"`

	// Time is when the value was read.
	Time time.Time `json:"time" yaml:"time"`
}

// DataFile describes one file under the data directory.
type DataFile struct {
	Path string `json:"path" yaml:"path"`

	Size int64 `json:"size" yaml:"size"`

	// SizeHuman is the human-readable size (e.g. "1.5 KiB").
	SizeHuman string `json:"size_human" yaml:"size_human"`

	ModTime time.Time `json:"mod_time" yaml:"mod_time"`

	// Age is the time since the file was last written.
	Age time.Duration `json:"age" yaml:"age"`
}

// RunInfo is one run history entry for display.
type RunInfo struct {
	ID       string        `json:"id" yaml:"id"`
	Kind     string        `json:"kind" yaml:"kind"`
	Devices  []string      `json:"devices" yaml:"devices"`
	Filename string        `json:"filename" yaml:"filename"`
	Points   int           `json:"points" yaml:"points"`
	Start    time.Time     `json:"start" yaml:"start"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Checksum string        `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}

// Report contains the complete output data for formatting. Only the
// sections relevant to a command are populated.
type Report struct {
	// Title heads the pretty output, e.g. "Instruments".
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	Instruments []Instrument `json:"instruments,omitempty" yaml:"instruments,omitempty"`
	Readings    []Reading    `json:"readings,omitempty" yaml:"readings,omitempty"`
	Files       []DataFile   `json:"files,omitempty" yaml:"files,omitempty"`
	Runs        []RunInfo    `json:"runs,omitempty" yaml:"runs,omitempty"`

	// Notes carries extra context lines (daemon status, hints).
	Notes []string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// TotalSize returns the sum of all data file sizes in the report.
func (r *Report) TotalSize() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.Size
	}
	return total
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry.
// It will replace any existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
