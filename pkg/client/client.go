// Package client talks to the hegeld daemon: it dials the Unix
// socket, issues calls, consumes progress events, and can start the
// daemon when none is running.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hegelab/hegel/pkg/daemon"
	"github.com/hegelab/hegel/pkg/hegel/logging"
)

// ErrClosed is returned by calls made after the connection dropped.
var ErrClosed = errors.New("connection closed")

// frame is the union of everything the daemon sends.
type frame struct {
	ID     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Client is one connection to the daemon. Safe for concurrent use.
type Client struct {
	conn   *websocket.Conn
	logger *logging.Logger

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan frame
	closed  bool

	events chan daemon.ProgressEvent
}

// Dial connects to the daemon socket.
func Dial(ctx context.Context, socket string) (*Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socket)
			},
		},
	}
	// The host is a placeholder: the transport dials the socket.
	conn, _, err := websocket.Dial(ctx, "ws://hegeld/ws", &websocket.DialOptions{
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("dial daemon at %s: %w", socket, err)
	}

	c := &Client{
		conn:    conn,
		logger:  logging.Get("client"),
		pending: make(map[uint64]chan frame),
		events:  make(chan daemon.ProgressEvent, 100),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	for {
		var f frame
		if err := wsjson.Read(context.Background(), c.conn, &f); err != nil {
			c.fail()
			return
		}
		if f.Event != "" {
			c.handleEvent(f)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		if ok {
			delete(c.pending, f.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- f
		}
	}
}

func (c *Client) handleEvent(f frame) {
	if f.Event != daemon.EventProgress {
		return
	}
	var ev daemon.ProgressEvent
	if err := json.Unmarshal(f.Params, &ev); err != nil {
		c.logger.Warn("bad progress event", "error", err)
		return
	}
	select {
	case c.events <- ev:
	default:
		// Consumer is behind, drop rather than stall the read loop.
	}
}

func (c *Client) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	close(c.events)
}

// Call issues one request and decodes the result into result, which
// may be nil when the caller only cares about success.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = data
	}
	id := c.nextID.Add(1)
	req := daemon.Request{ID: id, Method: method, Params: raw}

	ch := make(chan frame, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := wsjson.Write(ctx, c.conn, req)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("call %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	case f, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if f.Error != "" {
			return fmt.Errorf("%s: %s", method, f.Error)
		}
		if result != nil && len(f.Result) > 0 {
			return json.Unmarshal(f.Result, result)
		}
		return nil
	}
}

// Subscribe asks for progress events of one job (or all jobs when
// jobID is empty). Events arrive on the channel from Events.
func (c *Client) Subscribe(ctx context.Context, jobID string) error {
	return c.Call(ctx, daemon.MethodSubscribe, daemon.JobParams{JobID: jobID}, nil)
}

// Events returns the progress event stream. The channel closes when
// the connection drops.
func (c *Client) Events() <-chan daemon.ProgressEvent { return c.events }

// Close drops the connection. The read loop notices and fails any
// in-flight calls.
func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Convenience wrappers over Call.

// List returns the daemon's open instruments.
func (c *Client) List(ctx context.Context) ([]daemon.InstrumentInfo, error) {
	var out []daemon.InstrumentInfo
	err := c.Call(ctx, daemon.MethodList, nil, &out)
	return out, err
}

// Devices describes one instrument's devices.
func (c *Client) Devices(ctx context.Context, instr string) ([]daemon.DeviceInfo, error) {
	var out []daemon.DeviceInfo
	err := c.Call(ctx, daemon.MethodDevices, daemon.DevicesParams{Instrument: instr}, &out)
	return out, err
}

// Get reads one device.
func (c *Client) Get(ctx context.Context, device string) (*daemon.GetResult, error) {
	var out daemon.GetResult
	if err := c.Call(ctx, daemon.MethodGet, daemon.GetParams{Device: device}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Set writes one device.
func (c *Client) Set(ctx context.Context, device string, value float64) error {
	return c.Call(ctx, daemon.MethodSet, daemon.SetParams{Device: device, Value: value}, nil)
}

// Snapshot returns the instrument-state header lines.
func (c *Client) Snapshot(ctx context.Context) ([]string, error) {
	var out daemon.SnapshotResult
	if err := c.Call(ctx, daemon.MethodSnapshot, nil, &out); err != nil {
		return nil, err
	}
	return out.Lines, nil
}

// SweepStart launches a background sweep job.
func (c *Client) SweepStart(ctx context.Context, p daemon.SweepStartParams) (string, error) {
	var out daemon.SweepStartResult
	if err := c.Call(ctx, daemon.MethodSweepStart, p, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// SweepStatus reports where a job stands.
func (c *Client) SweepStatus(ctx context.Context, jobID string) (*daemon.JobStatus, error) {
	var out daemon.JobStatus
	if err := c.Call(ctx, daemon.MethodSweepStatus, daemon.JobParams{JobID: jobID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SweepAbort cancels a job.
func (c *Client) SweepAbort(ctx context.Context, jobID string) error {
	return c.Call(ctx, daemon.MethodSweepAbort, daemon.JobParams{JobID: jobID}, nil)
}

// Status reports daemon health.
func (c *Client) Status(ctx context.Context) (*daemon.StatusResult, error) {
	var out daemon.StatusResult
	if err := c.Call(ctx, daemon.MethodStatus, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.Call(ctx, daemon.MethodShutdown, nil, nil)
}
