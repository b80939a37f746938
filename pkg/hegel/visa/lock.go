package visa

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hegelab/hegel/pkg/hegel/logging"
)

// ErrLocked is returned by TryLock when another process holds the resource.
var ErrLocked = errors.New("resource locked by another process")

// ResourceLock is an advisory cross-process lock for one resource,
// backed by a lock file. The underlying flock is released by the kernel
// when the holder exits, so a crashed process never wedges a resource.
type ResourceLock struct {
	path  string
	retry time.Duration
	file  *os.File
}

// NewResourceLock creates a lock for the resource under dir.
func NewResourceLock(dir string, r Resource, retry time.Duration) (*ResourceLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	if retry <= 0 {
		retry = 10 * time.Millisecond
	}
	return &ResourceLock{
		path:  filepath.Join(dir, r.LockName()),
		retry: retry,
	}, nil
}

// TryLock attempts to take the lock without waiting.
// Returns ErrLocked when another process holds it.
func (l *ResourceLock) TryLock() error {
	if l.file != nil {
		return nil // already held
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("opening lock file: %w", err)
	}

	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		if errors.Is(err, errWouldBlock) {
			return ErrLocked
		}
		return fmt.Errorf("locking %s: %w", l.path, err)
	}

	l.file = f
	return nil
}

// Lock takes the lock, waiting until it is free or ctx is done. The
// wait is a poll at the retry interval, woken early by filesystem
// events on the lock directory so a release is picked up promptly.
func (l *ResourceLock) Lock(ctx context.Context) error {
	err := l.TryLock()
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrLocked) {
		return err
	}

	log := logging.Get("visa")
	log.Debug("waiting for resource lock", "path", l.path)

	watcher, werr := fsnotify.NewWatcher()
	if werr == nil {
		defer watcher.Close()
		if addErr := watcher.Add(filepath.Dir(l.path)); addErr != nil {
			// Fall back to pure polling.
			watcher.Close()
			watcher = nil
		}
	} else {
		watcher = nil
	}

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		var events chan fsnotify.Event
		if watcher != nil {
			events = watcher.Events
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", l.path, ctx.Err())
		case ev := <-events:
			if ev.Name != l.path {
				continue
			}
		case <-ticker.C:
		}

		err := l.TryLock()
		if err == nil {
			log.Debug("acquired resource lock", "path", l.path)
			return nil
		}
		if !errors.Is(err, ErrLocked) {
			return err
		}
	}
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *ResourceLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	err := flockRelease(l.file)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	return closeErr
}

// Held reports whether this process currently holds the lock.
func (l *ResourceLock) Held() bool {
	return l.file != nil
}

// Path returns the lock file path.
func (l *ResourceLock) Path() string {
	return l.path
}
