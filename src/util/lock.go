package util

import (
	"os"
	"path/filepath"

	"github.com/danjacques/gofslock/fslock"
	"github.com/pingcap/errors"
)

// ErrRunLocked means another run on this host holds the lock for the same
// scale factor.
var ErrRunLocked = errors.Normalize(
	"another run holds lock %s",
	errors.RFCCodeText("Datagen:RunLocked"),
)

// RunLock is a held host-local advisory lock.
type RunLock struct {
	path   string
	handle fslock.Handle
}

// AcquireRunLock takes the lock at path without blocking.
func AcquireRunLock(path string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Annotatef(err, "failed to create lock directory for %s", path)
	}
	h, err := fslock.Lock(path)
	if err == fslock.ErrLockHeld {
		return nil, ErrRunLocked.GenWithStackByArgs(path)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "failed to lock %s", path)
	}
	return &RunLock{path: path, handle: h}, nil
}

// Path returns the lock file location.
func (l *RunLock) Path() string {
	return l.path
}

// Release unlocks. The lock file itself is left in place.
func (l *RunLock) Release() error {
	return errors.Trace(l.handle.Unlock())
}
