package visa

import (
	"context"
	"time"
)

// Conn is a raw instrument connection. Implementations are not safe for
// concurrent use; Session layers the locking on top.
type Conn interface {
	// Write sends one command, appending the termination character.
	Write(ctx context.Context, cmd []byte) error

	// Read reads one reply up to the termination character, which is
	// stripped from the returned bytes.
	Read(ctx context.Context) ([]byte, error)

	// Query performs Write followed by Read as one exchange.
	Query(ctx context.Context, cmd []byte) ([]byte, error)

	Close() error
}

// Options configure a session at Open time.
type Options struct {
	// Timeout bounds each exchange when the caller's context carries no
	// deadline of its own.
	Timeout time.Duration

	// Termination is the read termination byte. Zero means '\n'.
	Termination byte

	// LockDir is the directory for cross-process lock files.
	// Empty means the config default.
	LockDir string

	// LockRetry is the poll interval while waiting on a busy resource.
	// Zero means 10ms.
	LockRetry time.Duration
}

// Option mutates Options.
type Option func(*Options)

// WithTimeout sets the per-exchange transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithTermination sets the read termination byte.
func WithTermination(b byte) Option {
	return func(o *Options) { o.Termination = b }
}

// WithLockDir sets the directory for cross-process lock files.
func WithLockDir(dir string) Option {
	return func(o *Options) { o.LockDir = dir }
}

// WithLockRetry sets the lock poll interval.
func WithLockRetry(d time.Duration) Option {
	return func(o *Options) { o.LockRetry = d }
}

func buildOptions(opts []Option) Options {
	o := Options{
		Timeout:     3 * time.Second,
		Termination: '\n',
		LockRetry:   10 * time.Millisecond,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.Termination == 0 {
		o.Termination = '\n'
	}
	if o.LockRetry <= 0 {
		o.LockRetry = 10 * time.Millisecond
	}
	return o
}

// exchangeContext returns a context bounded by the transport timeout
// when the caller supplied no deadline.
func exchangeContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
