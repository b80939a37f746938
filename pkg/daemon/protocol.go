package daemon

import (
	"encoding/json"
	"time"

	"github.com/hegelab/hegel/pkg/hegel/sweep"
)

// Request is one client call frame.
type Request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers a request by id. Exactly one of Result and Error is
// meaningful.
type Response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Event is a server-pushed frame, outside the request/response flow.
type Event struct {
	Event  string          `json:"event"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Method names understood by the service.
const (
	MethodList        = "list"
	MethodDevices     = "devices"
	MethodGet         = "get"
	MethodSet         = "set"
	MethodSnapshot    = "snapshot"
	MethodSweepStart  = "sweep.start"
	MethodSweepStatus = "sweep.status"
	MethodSweepAbort  = "sweep.abort"
	MethodSubscribe   = "subscribe"
	MethodStatus      = "status"
	MethodShutdown    = "shutdown"
)

// EventProgress is pushed to subscribers while a job runs; its params
// are a ProgressEvent.
const EventProgress = "progress"

// InstrumentInfo describes one open instrument.
type InstrumentInfo struct {
	Name     string   `json:"name"`
	Resource string   `json:"resource"`
	Vendor   string   `json:"vendor,omitempty"`
	Model    string   `json:"model,omitempty"`
	Serial   string   `json:"serial,omitempty"`
	Firmware string   `json:"firmware,omitempty"`
	Devices  []string `json:"devices,omitempty"`
}

// DeviceInfo describes one device of an instrument.
type DeviceInfo struct {
	Name     string   `json:"name"`
	Unit     string   `json:"unit,omitempty"`
	Readable bool     `json:"readable"`
	Settable bool     `json:"settable"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
}

// DevicesParams selects the instrument to describe.
type DevicesParams struct {
	Instrument string `json:"instrument"`
}

// GetParams names the device to read.
type GetParams struct {
	Device string `json:"device"` // "instr.dev"
}

// GetResult carries the value read.
type GetResult struct {
	Device string  `json:"device"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
}

// SetParams names the device and value to apply.
type SetParams struct {
	Device string  `json:"device"`
	Value  float64 `json:"value"`
}

// SnapshotResult carries the instrument-state header lines.
type SnapshotResult struct {
	Lines []string `json:"lines"`
}

// SweepStartParams configures a background sweep job.
type SweepStartParams struct {
	Device   string   `json:"device"`
	Start    float64  `json:"start"`
	Stop     float64  `json:"stop"`
	Points   int      `json:"points"`
	Log      bool     `json:"log,omitempty"`
	UpDown   bool     `json:"updown,omitempty"`
	Reset    bool     `json:"reset,omitempty"`
	Async    bool     `json:"async,omitempty"`
	Out      []string `json:"out,omitempty"`
	Filename string   `json:"filename,omitempty"`

	// BeforeWait is the settle delay in seconds. Nil means the
	// daemon's configured default; zero is an explicit no-wait.
	BeforeWait *float64 `json:"beforewait,omitempty"`
}

// SweepStartResult names the job created.
type SweepStartResult struct {
	JobID string `json:"job_id"`
}

// JobParams names a job.
type JobParams struct {
	JobID string `json:"job_id"`
}

// JobStatus reports where a job stands.
type JobStatus struct {
	JobID    string         `json:"job_id"`
	State    string         `json:"state"`
	Filename string         `json:"filename,omitempty"`
	Progress sweep.Progress `json:"progress"`
	Error    string         `json:"error,omitempty"`
}

// ProgressEvent is the payload of progress events.
type ProgressEvent struct {
	JobID    string         `json:"job_id"`
	State    string         `json:"state"`
	Progress sweep.Progress `json:"progress"`
}

// StatusResult reports daemon health.
type StatusResult struct {
	PID         int           `json:"pid"`
	Uptime      time.Duration `json:"uptime"`
	Instruments int           `json:"instruments"`
	Jobs        map[string]int `json:"jobs"` // state -> count
	Subscribers int           `json:"subscribers"`

	// MemAlloc is the daemon's live heap allocation in bytes.
	MemAlloc uint64 `json:"mem_alloc"`
}
