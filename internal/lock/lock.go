// Package lock keeps two runs from reconciling the same destination at once.
package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the destination lock.
var ErrLocked = errors.New("destination is locked by another sync")

// Lock is an exclusive advisory lock tied to a destination directory.
type Lock struct {
	path  string
	flock *flock.Flock
}

// ForDestination returns the lock guarding destination. The lock file lives
// in dir, outside the destination tree so the sync never sees it; an empty
// dir means os.TempDir().
func ForDestination(dir, destination string) (*Lock, error) {
	abs, err := filepath.Abs(destination)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve destination %s: %w", destination, err)
	}
	if dir == "" {
		dir = os.TempDir()
	}

	sum := sha256.Sum256([]byte(abs))
	path := filepath.Join(dir, "treesync-"+hex.EncodeToString(sum[:8])+".lock")
	return &Lock{path: path, flock: flock.New(path)}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// TryLock acquires the lock without waiting.
func (l *Lock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", l.path, err)
	}
	if !locked {
		return ErrLocked
	}
	return nil
}

// Unlock releases the lock. The lock file is kept so that every run locks
// the same inode.
func (l *Lock) Unlock() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.path, err)
	}
	return nil
}
