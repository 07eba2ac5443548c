package sync

import "fmt"

// DestinationIsFileError reports a destination root that exists as a
// regular file.
type DestinationIsFileError struct {
	Path string
}

func (e *DestinationIsFileError) Error() string {
	return fmt.Sprintf("destination %s is a file, expected a directory", e.Path)
}

// TypeConflictError reports an entry that is a directory on one side and a
// file on the other, or whose destination is a symbolic link. Such entries
// are skipped, never overwritten.
type TypeConflictError struct {
	Path         string
	Target       string
	SourceIsDir  bool
	TargetIsLink bool
}

func (e *TypeConflictError) Error() string {
	if e.TargetIsLink {
		return fmt.Sprintf("source %s would be written through symbolic link %s", e.Path, e.Target)
	}
	if e.SourceIsDir {
		return fmt.Sprintf("source %s is a directory but %s is a file", e.Path, e.Target)
	}
	return fmt.Sprintf("source %s is a file but %s is a directory", e.Path, e.Target)
}
