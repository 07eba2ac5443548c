package sync

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

// EventKind classifies what happened to an entry during a sync.
type EventKind int

const (
	SyncStarted EventKind = iota
	DestinationCreated
	DirectoryCreated
	FileCreated
	FileUpdated
	FileUnchanged
	FileDeleted
	DirectoryDeleted
	TypeConflict
	EntryFailed
	SyncFinished
)

var kindNames = [...]string{
	SyncStarted:        "sync_started",
	DestinationCreated: "destination_created",
	DirectoryCreated:   "directory_created",
	FileCreated:        "file_created",
	FileUpdated:        "file_updated",
	FileUnchanged:      "file_unchanged",
	FileDeleted:        "file_deleted",
	DirectoryDeleted:   "directory_deleted",
	TypeConflict:       "type_conflict",
	EntryFailed:        "entry_failed",
	SyncFinished:       "sync_finished",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
	return kindNames[k]
}

// Event is emitted by the Reconciler for every observable step.
type Event struct {
	Kind   EventKind
	Path   string // source path, or the removed path for deletions
	Target string // destination path
	Op     string // failed operation, for EntryFailed
	Size   int64  // bytes copied
	Err    error
	DryRun bool
	Time   time.Time // set on SyncStarted and SyncFinished
	Result *Result   // set on SyncFinished
}

// Reporter receives events. Implementations must be safe for concurrent use
// when the Reconciler runs with more than one worker.
type Reporter interface {
	Report(Event)
}

type nopReporter struct{}

func (nopReporter) Report(Event) {}

// LogReporter renders events as structured log lines.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a reporter writing to logger.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (l *LogReporter) Report(ev Event) {
	prefix := ""
	if ev.DryRun {
		prefix = "[dry-run] "
	}

	switch ev.Kind {
	case SyncStarted:
		l.logger.Info(prefix+"sync started",
			"source", ev.Path,
			"destination", ev.Target,
			"time", ev.Time.Format(time.RFC3339))
	case DestinationCreated:
		l.logger.Info(prefix+"destination directory created", "path", ev.Target)
	case DirectoryCreated:
		l.logger.Info(prefix+"new directory", "source", ev.Path, "dest", ev.Target)
	case FileCreated:
		l.logger.Info(prefix+"new file", "source", ev.Path, "dest", ev.Target, "size", humanize.Bytes(uint64(ev.Size)))
	case FileUpdated:
		l.logger.Info(prefix+"changed file", "source", ev.Path, "dest", ev.Target, "size", humanize.Bytes(uint64(ev.Size)))
	case FileUnchanged:
		l.logger.Debug(prefix+"file unchanged", "dest", ev.Target)
	case FileDeleted:
		l.logger.Info(prefix+"removed file", "path", ev.Path)
	case DirectoryDeleted:
		l.logger.Info(prefix+"removed directory", "path", ev.Path)
	case TypeConflict:
		l.logger.Warn(prefix+"type conflict, entry skipped", "source", ev.Path, "dest", ev.Target, "error", ev.Err)
	case EntryFailed:
		l.logger.Error(prefix+"operation failed", "op", ev.Op, "path", ev.Target, "error", ev.Err)
	case SyncFinished:
		args := []any{"time", ev.Time.Format(time.RFC3339)}
		if res := ev.Result; res != nil {
			args = append(args,
				"dirs_created", res.DirsCreated,
				"files_created", res.FilesCreated,
				"files_updated", res.FilesUpdated,
				"unchanged", res.Unchanged,
				"files_deleted", res.FilesDeleted,
				"dirs_deleted", res.DirsDeleted,
				"skipped", res.Skipped,
				"failed", len(res.Failures),
				"copied", humanize.Bytes(uint64(res.BytesCopied)),
				"duration", res.Duration.Round(time.Millisecond))
		}
		l.logger.Info(prefix+"sync finished", args...)
	default:
		l.logger.Debug(prefix+"sync event", "kind", ev.Kind.String(), "path", ev.Path)
	}
}
