package visa

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SimHandler emulates one instrument behind a SIM resource. Handle
// receives one command line and returns the reply, if the command
// produces one. Handlers are driven under the session lock and need no
// locking of their own.
type SimHandler interface {
	Handle(cmd string) (reply string, hasReply bool)
}

// SimFactory builds a fresh handler for each opened session.
type SimFactory func() SimHandler

var (
	simMu     sync.RWMutex
	simModels = map[string]SimFactory{}
)

// RegisterSimModel registers a simulated instrument model. Opening
// "SIM::<name>" dials a fresh instance of the model.
func RegisterSimModel(name string, factory SimFactory) {
	simMu.Lock()
	defer simMu.Unlock()
	simModels[strings.ToLower(name)] = factory
}

func lookupSimModel(name string) (SimFactory, bool) {
	simMu.RLock()
	defer simMu.RUnlock()
	f, ok := simModels[strings.ToLower(name)]
	return f, ok
}

// simConn drives a SimHandler through the Conn interface. Replies are
// queued so the Write/Read split behaves like a real socket.
type simConn struct {
	handler SimHandler
	pending []string
	closed  bool
}

func dialSim(r Resource) (*simConn, error) {
	factory, ok := lookupSimModel(r.Host)
	if !ok {
		return nil, fmt.Errorf("unknown simulated model %q", r.Host)
	}
	return &simConn{handler: factory()}, nil
}

func (c *simConn) Write(ctx context.Context, cmd []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	// A line may carry several ';'-separated commands.
	for _, part := range strings.Split(string(cmd), ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if reply, ok := c.handler.Handle(part); ok {
			c.pending = append(c.pending, reply)
		}
	}
	return nil
}

func (c *simConn) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(c.pending) == 0 {
		return nil, fmt.Errorf("read with no pending reply")
	}
	reply := c.pending[0]
	c.pending = c.pending[1:]
	return []byte(reply), nil
}

func (c *simConn) Query(ctx context.Context, cmd []byte) ([]byte, error) {
	if err := c.Write(ctx, cmd); err != nil {
		return nil, err
	}
	return c.Read(ctx)
}

func (c *simConn) Close() error {
	c.closed = true
	return nil
}

// simBase implements the IEEE 488.2 common command subset shared by the
// builtin models: identification, event status, error queue.
type simBase struct {
	model  string
	errs   []string
	opc    bool
	onRST  func()
	custom func(cmd string) (string, bool, bool) // reply, hasReply, handled
}

func (s *simBase) pushError(code int, msg string) {
	s.errs = append(s.errs, fmt.Sprintf("%d,%q", code, msg))
}

func (s *simBase) popError() string {
	if len(s.errs) == 0 {
		return `0,"No error"`
	}
	e := s.errs[0]
	s.errs = s.errs[1:]
	return e
}

func (s *simBase) Handle(cmd string) (string, bool) {
	upper := strings.ToUpper(cmd)
	switch {
	case upper == "*IDN?":
		return fmt.Sprintf("Hegel Instruments,SIM-%s,0,1.0", s.model), true
	case upper == "*OPC?":
		return "1", true
	case upper == "*OPC":
		s.opc = true
		return "", false
	case upper == "*ESR?":
		// Bit 0 is operation complete.
		if s.opc {
			s.opc = false
			return "1", true
		}
		return "0", true
	case upper == "*CLS":
		s.errs = nil
		s.opc = false
		return "", false
	case upper == "*RST":
		if s.onRST != nil {
			s.onRST()
		}
		return "", false
	case upper == "SYST:ERR?" || upper == "SYSTEM:ERROR?":
		return s.popError(), true
	}

	if s.custom != nil {
		if reply, hasReply, handled := s.custom(cmd); handled {
			return reply, hasReply
		}
	}

	s.pushError(-113, "Undefined header")
	return "", false
}

// stripPrefixes removes the first matching subsystem prefix, so the
// models accept both the bare and the subsystem-qualified spellings.
func stripPrefixes(cmd string, prefixes ...string) string {
	for _, p := range prefixes {
		if strings.HasPrefix(cmd, p) {
			return cmd[len(p):]
		}
	}
	return cmd
}

// simSource is a settable output (a voltage/current source). The LEV
// command accepts a settle delay so tests can exercise slow devices.
type simSource struct {
	simBase
	level  float64
	settle time.Duration
}

func newSimSource() SimHandler {
	s := &simSource{}
	s.model = "source"
	s.onRST = func() { s.level = 0 }
	s.custom = s.handle
	return s
}

func (s *simSource) handle(cmd string) (string, bool, bool) {
	upper := stripPrefixes(strings.ToUpper(cmd), "SOURCE:", "SOUR:")
	cmd = cmd[len(cmd)-len(upper):]
	switch {
	case upper == "LEV?":
		return strconv.FormatFloat(s.level, 'g', -1, 64), true, true
	case strings.HasPrefix(upper, "LEV "):
		v, err := strconv.ParseFloat(strings.TrimSpace(cmd[4:]), 64)
		if err != nil {
			s.pushError(-104, "Data type error")
			return "", false, true
		}
		if s.settle > 0 {
			time.Sleep(s.settle)
		}
		s.level = v
		return "", false, true
	case upper == "SETTLE?":
		return strconv.FormatFloat(s.settle.Seconds(), 'g', -1, 64), true, true
	case strings.HasPrefix(upper, "SETTLE "):
		sec, err := strconv.ParseFloat(strings.TrimSpace(cmd[7:]), 64)
		if err != nil || sec < 0 {
			s.pushError(-222, "Data out of range")
			return "", false, true
		}
		s.settle = time.Duration(sec * float64(time.Second))
		return "", false, true
	}
	return "", false, false
}

// simMeter is a readable input. READ? returns a deterministic waveform
// so sweeps and records produce structured, reproducible data.
type simMeter struct {
	simBase
	phase float64
	rng   float64
}

func newSimMeter() SimHandler {
	m := &simMeter{rng: 10}
	m.model = "meter"
	m.onRST = func() { m.phase = 0; m.rng = 10 }
	m.custom = m.handle
	return m
}

func (m *simMeter) handle(cmd string) (string, bool, bool) {
	upper := stripPrefixes(strings.ToUpper(cmd), "SENSE:", "SENS:")
	cmd = cmd[len(cmd)-len(upper):]
	switch {
	case upper == "READ?":
		v := m.rng * math.Sin(m.phase)
		m.phase += 0.1
		return strconv.FormatFloat(v, 'g', -1, 64), true, true
	case upper == "RANG?":
		return strconv.FormatFloat(m.rng, 'g', -1, 64), true, true
	case strings.HasPrefix(upper, "RANG "):
		v, err := strconv.ParseFloat(strings.TrimSpace(cmd[5:]), 64)
		if err != nil || v <= 0 {
			s := &m.simBase
			s.pushError(-222, "Data out of range")
			return "", false, true
		}
		m.rng = v
		return "", false, true
	}
	return "", false, false
}

func init() {
	RegisterSimModel("source", newSimSource)
	RegisterSimModel("meter", newSimMeter)
}
