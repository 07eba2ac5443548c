// Package tree lists directory trees in depth-first pre-order.
package tree

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/schaermu/treesync/internal/filesystem"
)

// Entry is a path discovered while listing a tree.
type Entry struct {
	Path  string // full path
	Rel   string // path relative to the listed root
	IsDir bool
}

// TraversalError reports a directory that could not be listed.
type TraversalError struct {
	Path string
	Err  error
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("list directory %s: %v", e.Path, e.Err)
}

func (e *TraversalError) Unwrap() error {
	return e.Err
}

// Lister walks trees through a filesystem.FS.
type Lister struct {
	fs      filesystem.FS
	exclude *Excluder
}

// NewLister creates a lister. exclude may be nil.
func NewLister(fsys filesystem.FS, exclude *Excluder) *Lister {
	return &Lister{fs: fsys, exclude: exclude}
}

// List returns every descendant of root, files and directories, parents
// before their children. The root itself is not included.
//
// A directory below root that cannot be listed contributes no children; the
// walk goes on and the returned error joins one *TraversalError per such
// directory next to the entries gathered. If root itself cannot be listed,
// no entries are returned.
func (l *Lister) List(root string) ([]Entry, error) {
	return l.ListSubtree(root, "")
}

// ListSubtree lists the directory at rel below root like List does, with
// every Rel still relative to root so exclusions anchored at root apply.
func (l *Lister) ListSubtree(root, rel string) ([]Entry, error) {
	dir := Resolve(root, rel)
	children, err := l.fs.ListChildren(dir)
	if err != nil {
		return nil, &TraversalError{Path: dir, Err: err}
	}

	var (
		entries []Entry
		errs    []error
	)
	stack, err := l.push(nil, root, dir, children)
	if err != nil {
		errs = append(errs, err)
	}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		entries = append(entries, e)

		if !e.IsDir {
			continue
		}
		children, err := l.fs.ListChildren(e.Path)
		if err != nil {
			errs = append(errs, &TraversalError{Path: e.Path, Err: err})
			continue
		}
		if stack, err = l.push(stack, root, e.Path, children); err != nil {
			errs = append(errs, err)
		}
	}

	return entries, errors.Join(errs...)
}

// push adds the children of dir in reverse so they pop off the stack in
// listing order.
func (l *Lister) push(stack []Entry, root, dir string, children []filesystem.DirEntry) ([]Entry, error) {
	for i := len(children) - 1; i >= 0; i-- {
		c := children[i]
		path := filepath.Join(dir, c.Name)
		rel, err := Relative(root, path)
		if err != nil {
			return stack, &TraversalError{Path: dir, Err: err}
		}
		if l.exclude.Match(rel, c.IsDir) {
			continue
		}
		stack = append(stack, Entry{Path: path, Rel: rel, IsDir: c.IsDir})
	}
	return stack, nil
}
