package visa

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hegelab/hegel/pkg/hegel/config"
	"github.com/hegelab/hegel/pkg/hegel/logging"
)

// Session is an open connection to one resource with the cooperative
// locking contract applied: every exchange holds the in-process session
// mutex, so interleaved goroutines can never corrupt each other's
// replies, and Lock/WithLock extend that guarantee across processes.
type Session struct {
	resource Resource
	conn     Conn
	opts     Options

	// mu serializes exchanges within this process.
	mu sync.Mutex

	// rlock is the cross-process lock; nil for SIM resources, which
	// exist only inside this process.
	rlock *ResourceLock
}

// Open dials the resource and prepares its locks.
func Open(ctx context.Context, name string, opts ...Option) (*Session, error) {
	r, err := ParseResource(name)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)

	var conn Conn
	switch r.Scheme {
	case SchemeTCPIP:
		conn, err = dialTCP(ctx, r, o)
	case SchemeSim:
		conn, err = dialSim(r)
	default:
		err = fmt.Errorf("%w: %q", ErrBadResource, name)
	}
	if err != nil {
		return nil, err
	}

	s := &Session{resource: r, conn: conn, opts: o}

	if r.Scheme != SchemeSim {
		lockDir := o.LockDir
		if lockDir == "" {
			lockDir = config.DefaultLockDir()
		}
		rl, err := NewResourceLock(lockDir, r, o.LockRetry)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		s.rlock = rl
	}

	logging.Get("visa").Info("session opened", "resource", r.String())
	return s, nil
}

// Resource returns the parsed resource this session talks to.
func (s *Session) Resource() Resource {
	return s.resource
}

// Write sends one command under the session lock.
func (s *Session) Write(ctx context.Context, cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exCtx, cancel := exchangeContext(ctx, s.opts.Timeout)
	defer cancel()
	return s.conn.Write(exCtx, []byte(cmd))
}

// Read reads one reply under the session lock.
func (s *Session) Read(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exCtx, cancel := exchangeContext(ctx, s.opts.Timeout)
	defer cancel()
	b, err := s.conn.Read(exCtx)
	return string(b), err
}

// Query performs write+read as a single locked exchange, so no other
// goroutine can slip a command between the question and the answer.
func (s *Session) Query(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exCtx, cancel := exchangeContext(ctx, s.opts.Timeout)
	defer cancel()
	b, err := s.conn.Query(exCtx, []byte(cmd))
	if err != nil {
		return "", fmt.Errorf("query %q on %s: %w", cmd, s.resource, err)
	}
	return string(b), nil
}

// QueryNoTimeout performs a locked exchange bounded only by ctx. Used
// for operations that legitimately outlast the transport timeout
// (long acquisitions awaited via *OPC polling use this).
func (s *Session) QueryNoTimeout(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.conn.Query(ctx, []byte(cmd))
	if err != nil {
		return "", fmt.Errorf("query %q on %s: %w", cmd, s.resource, err)
	}
	return string(b), nil
}

// Lock takes the cross-process resource lock, waiting until free or ctx
// is done. SIM resources have no cross-process lock; Lock is a no-op.
func (s *Session) Lock(ctx context.Context) error {
	if s.rlock == nil {
		return nil
	}
	return s.rlock.Lock(ctx)
}

// TryLock takes the cross-process lock without waiting.
func (s *Session) TryLock() error {
	if s.rlock == nil {
		return nil
	}
	return s.rlock.TryLock()
}

// Unlock releases the cross-process lock.
func (s *Session) Unlock() error {
	if s.rlock == nil {
		return nil
	}
	return s.rlock.Unlock()
}

// WithLock runs fn while holding the cross-process lock.
func (s *Session) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.Lock(ctx); err != nil {
		return err
	}
	defer func() { _ = s.Unlock() }()
	return fn(ctx)
}

// Timeout returns the configured transport timeout.
func (s *Session) Timeout() time.Duration {
	return s.opts.Timeout
}

// Close releases the lock if held and closes the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rlock != nil && s.rlock.Held() {
		_ = s.rlock.Unlock()
	}
	err := s.conn.Close()
	logging.Get("visa").Info("session closed", "resource", s.resource.String())
	return err
}
