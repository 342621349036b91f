// Package indexlock guards an index-store directory against concurrent
// ownership by more than one cortexidx daemon process, using an advisory
// file lock so a second process started against the same directory fails
// fast instead of corrupting shared state.
package indexlock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock is a held, exclusive, advisory lock over one index-store directory.
type Lock struct {
	flock *flock.Flock
}

// Acquire creates indexStoreDir if needed and attempts to become its sole
// owner. It returns (nil, nil) if another process already holds the lock,
// rather than an error: callers should treat that as "another daemon
// instance is already indexing this directory" and exit cleanly.
func Acquire(indexStoreDir string) (*Lock, error) {
	if err := os.MkdirAll(indexStoreDir, 0o755); err != nil {
		return nil, fmt.Errorf("indexlock: creating %s: %w", indexStoreDir, err)
	}

	lockPath := filepath.Join(indexStoreDir, ".cortexidx.lock")
	fl := flock.New(lockPath)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("indexlock: acquiring lock on %s: %w", lockPath, err)
	}
	if !locked {
		return nil, nil
	}
	return &Lock{flock: fl}, nil
}

// Release gives up ownership of the index-store directory.
func (l *Lock) Release() error {
	if l == nil || l.flock == nil {
		return nil
	}
	return l.flock.Unlock()
}
