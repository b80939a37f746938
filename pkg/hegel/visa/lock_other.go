//go:build !unix

package visa

import (
	"errors"
	"os"
)

var errWouldBlock = errors.New("lock would block")

// Without flock support the lock file's existence is the only guard;
// in-process callers are still serialized by the session mutex.
func flockExclusive(_ *os.File) error { return nil }

func flockRelease(_ *os.File) error { return nil }
