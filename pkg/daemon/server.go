package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hegelab/hegel/pkg/hegel/logging"
)

// Server accepts client connections on a Unix socket and speaks the
// websocket frame protocol with each.
type Server struct {
	svc    *Service
	socket string
	logger *logging.Logger

	httpSrv  *http.Server
	listener net.Listener

	mu      sync.Mutex
	started bool
}

// NewServer builds a server for the given service and socket path.
func NewServer(svc *Service, socket string) *Server {
	return &Server{
		svc:    svc,
		socket: socket,
		logger: logging.Get("daemon"),
	}
}

// Start listens on the Unix socket and serves until Stop. A leftover
// socket file from a crashed daemon is replaced.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("server already started")
	}

	if err := os.Remove(s.socket); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", s.socket)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socket, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.started = true

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve", "error", err)
		}
	}()
	s.logger.Info("listening", "socket", s.socket)
	return nil
}

// Stop shuts the server down and removes the socket file.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	err := s.httpSrv.Shutdown(ctx)
	if rerr := os.Remove(s.socket); rerr != nil && !os.IsNotExist(rerr) && err == nil {
		err = rerr
	}
	return err
}

// Socket returns the path the server listens on.
func (s *Server) Socket() string { return s.socket }

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept", "error", err)
		return
	}
	c := &connection{
		svc:    s.svc,
		conn:   conn,
		out:    make(chan any, 64),
		logger: s.logger,
	}
	c.serve(r.Context())
}

// connection handles one client: a read loop dispatching requests and
// a single writer goroutine serializing all outgoing frames.
type connection struct {
	svc    *Service
	conn   *websocket.Conn
	out    chan any
	logger *logging.Logger

	subsMu sync.Mutex
	subs   []string
}

func (c *connection) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.cleanup()

	go c.writeLoop(ctx)

	for {
		var req Request
		if err := wsjson.Read(ctx, c.conn, &req); err != nil {
			// Normal closure or dropped client, either way we are done.
			c.conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		c.dispatch(ctx, req)
	}
}

func (c *connection) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := wsjson.Write(wctx, c.conn, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (c *connection) send(ctx context.Context, frame any) {
	select {
	case c.out <- frame:
	case <-ctx.Done():
	}
}

func (c *connection) dispatch(ctx context.Context, req Request) {
	if req.Method == MethodSubscribe {
		c.subscribe(ctx, req)
		return
	}

	result, err := c.svc.Handle(ctx, req.Method, req.Params)
	resp := Response{ID: req.ID}
	if err != nil {
		resp.Error = err.Error()
	} else if result != nil {
		data, merr := json.Marshal(result)
		if merr != nil {
			resp.Error = merr.Error()
		} else {
			resp.Result = data
		}
	}
	c.send(ctx, resp)
}

// subscribe attaches the connection to a job's progress stream and
// pumps events until the subscription or connection ends.
func (c *connection) subscribe(ctx context.Context, req Request) {
	var p JobParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			c.send(ctx, Response{ID: req.ID, Error: fmt.Sprintf("bad params: %v", err)})
			return
		}
	}
	sub := c.svc.Broadcaster().Subscribe(p.JobID)
	if sub == nil {
		c.send(ctx, Response{ID: req.ID, Error: "daemon shutting down"})
		return
	}
	c.subsMu.Lock()
	c.subs = append(c.subs, sub.ID)
	c.subsMu.Unlock()
	c.send(ctx, Response{ID: req.ID, Result: json.RawMessage(`{}`)})

	go func() {
		for ev := range sub.Events {
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			c.send(ctx, Event{Event: EventProgress, Params: data})
		}
	}()
}

func (c *connection) cleanup() {
	c.subsMu.Lock()
	subs := c.subs
	c.subs = nil
	c.subsMu.Unlock()
	for _, id := range subs {
		c.svc.Broadcaster().Unsubscribe(id)
	}
}
