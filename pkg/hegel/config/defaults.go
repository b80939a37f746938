// Package config provides configuration management for the hegel
// instrument control toolkit.
package config

import "time"

// Default configuration values for hegel.
const (
	// DefaultDataPath is where sweep and record data files land when the
	// configured path is empty. Relative filenames are joined to it.
	DefaultDataPath = "~/hegel-data"

	// DefaultFilename is the data filename template used when none is given.
	DefaultFilename = "%T.txt"

	// DefaultTimeout is the transport timeout applied to instrument
	// exchanges that carry no context deadline of their own.
	DefaultTimeout = 3 * time.Second

	// DefaultBeforeWait is the settle delay between setting the swept
	// device and reading the outputs.
	DefaultBeforeWait = 20 * time.Millisecond

	// DefaultLockRetry is the poll interval while waiting on a resource
	// lock held by another process.
	DefaultLockRetry = 10 * time.Millisecond

	// DefaultRetentionDays is how long run history entries are kept.
	DefaultRetentionDays = 90
)

// DefaultInstruments is the out-of-the-box instrument table. A simulated
// source/meter pair is always available so the tool works without
// hardware attached.
var DefaultInstruments = map[string]InstrumentConfig{
	"src": {Resource: "SIM::source"},
	"dmm": {Resource: "SIM::meter"},
}
