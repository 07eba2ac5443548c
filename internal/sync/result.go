package sync

import (
	"errors"
	stdsync "sync"
	"time"
)

// Result summarizes one Synchronize call.
type Result struct {
	DirsCreated  int
	FilesCreated int
	FilesUpdated int
	Unchanged    int
	FilesDeleted int
	DirsDeleted  int
	Skipped      int
	BytesCopied  int64
	Duration     time.Duration
	Failures     []error

	mu stdsync.Mutex
}

// Changes returns the number of entries created, updated or deleted.
func (r *Result) Changes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.DirsCreated + r.FilesCreated + r.FilesUpdated + r.FilesDeleted + r.DirsDeleted
}

// Err joins every per-entry failure, or returns nil for a clean run.
func (r *Result) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.Failures...)
}

func (r *Result) record(kind EventKind, size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch kind {
	case DirectoryCreated:
		r.DirsCreated++
	case FileCreated:
		r.FilesCreated++
		r.BytesCopied += size
	case FileUpdated:
		r.FilesUpdated++
		r.BytesCopied += size
	case FileUnchanged:
		r.Unchanged++
	case FileDeleted:
		r.FilesDeleted++
	case DirectoryDeleted:
		r.DirsDeleted++
	}
}

func (r *Result) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, err)
}

func (r *Result) skip() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped++
}
