// Package sync reconciles a destination tree with a source tree.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/schaermu/treesync/internal/change"
	"github.com/schaermu/treesync/internal/filesystem"
	"github.com/schaermu/treesync/internal/tree"
)

// Options tune a Reconciler.
type Options struct {
	// Workers is the number of top-level subtrees processed concurrently
	// within a pass. Values below 2 process everything sequentially.
	Workers int
	// DryRun reports what would change without touching the destination.
	DryRun bool
	// Exclude hides matching entries from both trees: they are neither
	// copied nor deleted.
	Exclude *tree.Excluder
}

// Reconciler makes a destination tree mirror a source tree
type Reconciler struct {
	fs       filesystem.FS
	lister   *tree.Lister
	detector *change.Detector
	reporter Reporter
	logger   *slog.Logger
	opts     Options
}

// NewReconciler creates a reconciler. reporter may be nil.
func NewReconciler(fsys filesystem.FS, reporter Reporter, logger *slog.Logger, opts Options) *Reconciler {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Reconciler{
		fs:       fsys,
		lister:   tree.NewLister(fsys, opts.Exclude),
		detector: change.NewDetector(fsys),
		reporter: reporter,
		logger:   logger,
		opts:     opts,
	}
}

// Synchronize makes destination mirror source. source must exist.
//
// A directory source runs two passes: the creation pass copies new and
// changed entries, then the deletion pass removes destination entries that
// have no source counterpart. A file source is synced into destination under
// its own name and nothing is deleted.
//
// Failures of individual entries are recorded in the result and never stop
// a pass. The returned error is non-nil only when the run could not proceed:
// the destination could not be prepared, the source root could not be
// listed, or ctx was cancelled.
func (r *Reconciler) Synchronize(ctx context.Context, source, destination string) (*Result, error) {
	res := &Result{}
	started := time.Now()
	r.emit(Event{Kind: SyncStarted, Path: source, Target: destination, Time: started})
	if patterns := r.opts.Exclude.Patterns(); len(patterns) > 0 {
		r.logger.Debug("excluding entries", "patterns", patterns)
	}

	err := r.synchronize(ctx, source, destination, res)

	res.Duration = time.Since(started)
	r.emit(Event{Kind: SyncFinished, Path: source, Target: destination, Time: time.Now(), Result: res})
	return res, err
}

func (r *Reconciler) synchronize(ctx context.Context, source, destination string, res *Result) error {
	created, err := r.ensureDestination(destination)
	if err != nil {
		return err
	}

	srcIsDir, err := r.fs.IsDir(source)
	if err != nil {
		return fmt.Errorf("failed to inspect source: %w", err)
	}
	if !srcIsDir {
		r.logger.Debug("source is a file, syncing it into destination", "source", source)
		name := filepath.Base(source)
		r.syncEntry(tree.Entry{Path: source, Rel: name}, tree.Resolve(destination, name), true, res)
		return nil
	}

	if err := r.createPass(ctx, source, destination, res); err != nil {
		return err
	}

	// a destination that only exists on paper holds nothing to delete
	if created && r.opts.DryRun {
		return nil
	}
	return r.deletePass(ctx, source, destination, res)
}

// ensureDestination creates destination with its ancestors when missing and
// reports whether it did.
func (r *Reconciler) ensureDestination(destination string) (bool, error) {
	exists, err := r.fs.Exists(destination)
	if err != nil {
		return false, fmt.Errorf("failed to inspect destination: %w", err)
	}
	if exists {
		isDir, err := r.fs.IsDir(destination)
		if err != nil {
			return false, fmt.Errorf("failed to inspect destination: %w", err)
		}
		if !isDir {
			return false, &DestinationIsFileError{Path: destination}
		}
		return false, nil
	}

	if !r.opts.DryRun {
		if err := r.fs.MkdirAll(destination); err != nil {
			return false, fmt.Errorf("failed to create destination directory: %w", err)
		}
	}
	r.emit(Event{Kind: DestinationCreated, Target: destination})
	return true, nil
}

// createPass copies every source entry missing or different in destination.
func (r *Reconciler) createPass(ctx context.Context, source, destination string, res *Result) error {
	entries, err := r.lister.List(source)
	if entries == nil && err != nil {
		return fmt.Errorf("failed to list source tree: %w", err)
	}
	r.reportTraversal(err, res)
	r.logger.Debug("creation pass", "source", source, "entries", len(entries))

	return r.runGroups(ctx, r.partition(entries), func(ctx context.Context, group []tree.Entry) error {
		// entries below a directory that failed or conflicts are skipped;
		// pre-order means one blocked subtree at a time
		blocked := ""
		for _, e := range group {
			if err := ctx.Err(); err != nil {
				return err
			}
			if blocked != "" && tree.Within(e.Rel, blocked) {
				res.skip()
				r.logger.Debug("skipping entry below blocked directory", "path", e.Path, "blocked", blocked)
				continue
			}
			blocked = ""

			if !r.syncEntry(e, tree.Resolve(destination, e.Rel), false, res) && e.IsDir {
				blocked = e.Rel
			}
		}
		return nil
	})
}

// syncEntry brings target in line with the source entry e and reports
// whether it succeeded. overwriteNew controls whether a copy to a target
// that was absent may replace one that appeared in the meantime.
func (r *Reconciler) syncEntry(e tree.Entry, target string, overwriteNew bool, res *Result) bool {
	exists, err := r.fs.Exists(target)
	if err != nil {
		r.fail(res, "stat", target, err)
		return false
	}

	if !exists {
		if !e.IsDir {
			return r.copy(e.Path, target, overwriteNew, FileCreated, res)
		}
		if !r.opts.DryRun {
			if err := r.fs.Mkdir(target); err != nil {
				r.fail(res, "mkdir", target, err)
				return false
			}
		}
		res.record(DirectoryCreated, 0)
		r.emit(Event{Kind: DirectoryCreated, Path: e.Path, Target: target})
		return true
	}

	// nothing is ever written through a link in the destination
	isLink, err := r.fs.IsSymlink(target)
	if err != nil {
		r.fail(res, "stat", target, err)
		return false
	}
	if isLink {
		conflict := &TypeConflictError{Path: e.Path, Target: target, SourceIsDir: e.IsDir, TargetIsLink: true}
		res.fail(conflict)
		r.emit(Event{Kind: TypeConflict, Path: e.Path, Target: target, Err: conflict})
		return false
	}

	targetIsDir, err := r.fs.IsDir(target)
	if err != nil {
		r.fail(res, "stat", target, err)
		return false
	}
	if e.IsDir != targetIsDir {
		conflict := &TypeConflictError{Path: e.Path, Target: target, SourceIsDir: e.IsDir}
		res.fail(conflict)
		r.emit(Event{Kind: TypeConflict, Path: e.Path, Target: target, Err: conflict})
		return false
	}
	if e.IsDir {
		return true
	}

	unchanged, err := r.detector.Unchanged(e.Path, target)
	if err != nil {
		r.fail(res, "compare", target, err)
		return false
	}
	if unchanged {
		res.record(FileUnchanged, 0)
		r.emit(Event{Kind: FileUnchanged, Path: e.Path, Target: target})
		return true
	}
	return r.copy(e.Path, target, true, FileUpdated, res)
}

func (r *Reconciler) copy(src, target string, overwrite bool, kind EventKind, res *Result) bool {
	var (
		n   int64
		err error
	)
	if r.opts.DryRun {
		n, err = r.fs.Size(src)
	} else {
		n, err = r.fs.Copy(src, target, overwrite)
	}
	if err != nil {
		r.fail(res, "copy", target, err)
		return false
	}

	res.record(kind, n)
	r.emit(Event{Kind: kind, Path: src, Target: target, Size: n})
	return true
}

// deletePass removes destination entries without a source counterpart.
func (r *Reconciler) deletePass(ctx context.Context, source, destination string, res *Result) error {
	entries, err := r.lister.List(destination)
	r.reportTraversal(err, res)
	r.logger.Debug("deletion pass", "destination", destination, "entries", len(entries))

	return r.runGroups(ctx, r.partition(entries), func(ctx context.Context, group []tree.Entry) error {
		// subtree already removed, or kept whole because of a type conflict
		done := ""
		for _, d := range group {
			if err := ctx.Err(); err != nil {
				return err
			}
			if done != "" && tree.Within(d.Rel, done) {
				continue
			}
			done = ""

			exists, err := r.fs.Exists(d.Path)
			if err != nil {
				r.fail(res, "stat", d.Path, err)
				continue
			}
			if !exists {
				continue
			}

			expected := tree.Resolve(source, d.Rel)
			ok, err := r.fs.Exists(expected)
			if err != nil {
				r.fail(res, "stat", expected, err)
				continue
			}
			if ok {
				if d.IsDir && !r.sourceIsDir(expected) {
					done = d.Rel
				}
				continue
			}

			// the listing describes links as leaves; stat would follow them
			if d.IsDir {
				r.removeTree(destination, d.Rel, res)
				done = d.Rel
				continue
			}
			r.remove(d.Path, FileDeleted, res)
		}
		return nil
	})
}

// sourceIsDir reports whether path is a directory, treating errors as "no":
// the creation pass has already reported anything wrong with it.
func (r *Reconciler) sourceIsDir(path string) bool {
	isDir, err := r.fs.IsDir(path)
	return err == nil && isDir
}

// removeTree deletes the directory at rel below root and everything inside
// it, deepest entries first. Excluded entries are left alone and keep their
// directories alive.
func (r *Reconciler) removeTree(root, rel string, res *Result) {
	dir := tree.Resolve(root, rel)
	entries, err := r.lister.ListSubtree(root, rel)
	r.reportTraversal(err, res)

	// reversed pre-order puts every entry after all of its descendants
	for i := len(entries) - 1; i >= 0; i-- {
		kind := FileDeleted
		if entries[i].IsDir {
			kind = DirectoryDeleted
		}
		r.remove(entries[i].Path, kind, res)
	}
	r.remove(dir, DirectoryDeleted, res)
}

func (r *Reconciler) remove(path string, kind EventKind, res *Result) {
	if !r.opts.DryRun {
		if err := r.fs.Remove(path); err != nil {
			if errors.Is(err, filesystem.ErrNotEmpty) {
				// the cause, if any, was already reported for a descendant
				r.logger.Debug("keeping non-empty directory", "path", path)
				return
			}
			r.fail(res, "remove", path, err)
			return
		}
	}
	res.record(kind, 0)
	r.emit(Event{Kind: kind, Path: path})
}

// partition splits entries into groups that can be processed independently:
// one per top-level entry when running with several workers, otherwise a
// single group. Listing order is kept within each group.
func (r *Reconciler) partition(entries []tree.Entry) [][]tree.Entry {
	if len(entries) == 0 {
		return nil
	}
	if r.opts.Workers < 2 {
		return [][]tree.Entry{entries}
	}

	index := make(map[string]int)
	var groups [][]tree.Entry
	for _, e := range entries {
		top := tree.TopLevel(e.Rel)
		i, ok := index[top]
		if !ok {
			i = len(groups)
			index[top] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], e)
	}
	return groups
}

// runGroups applies fn to every group, concurrently when more than one
// worker is configured. fn only fails on cancellation, so one group never
// stops another for any other reason.
func (r *Reconciler) runGroups(ctx context.Context, groups [][]tree.Entry, fn func(context.Context, []tree.Entry) error) error {
	if r.opts.Workers < 2 || len(groups) < 2 {
		for _, group := range groups {
			if err := fn(ctx, group); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			return fn(gctx, group)
		})
	}
	return g.Wait()
}

// reportTraversal records every directory that could not be listed.
func (r *Reconciler) reportTraversal(err error, res *Result) {
	if err == nil {
		return
	}

	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}

	for _, e := range errs {
		path := ""
		var travErr *tree.TraversalError
		if errors.As(e, &travErr) {
			path = travErr.Path
		}
		r.fail(res, "list", path, e)
	}
}

func (r *Reconciler) fail(res *Result, op, path string, err error) {
	res.fail(err)
	r.emit(Event{Kind: EntryFailed, Op: op, Target: path, Err: err})
}

func (r *Reconciler) emit(ev Event) {
	ev.DryRun = r.opts.DryRun
	r.reporter.Report(ev)
}
