// Package filesystem provides the filesystem primitives the sync engine is
// built on. Every operation works on a single path; recursion is left to the
// callers.
package filesystem

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	// TempPrefix prefixes the temporary files Copy writes before renaming them
	// into place.
	TempPrefix = ".treesync-tmp-"

	fileMode = 0o644
	dirMode  = 0o755
)

// ErrNotEmpty is returned by Remove for a directory that still has children.
var ErrNotEmpty = errors.New("directory not empty")

// DirEntry is a direct child of a listed directory.
type DirEntry struct {
	Name  string
	IsDir bool
}

// FS is the set of filesystem capabilities consumed by the sync engine.
// Failures are reported as *fs.PathError carrying the operation and path.
type FS interface {
	// Exists reports whether path exists.
	Exists(path string) (bool, error)
	// IsDir reports whether path exists and is a directory.
	IsDir(path string) (bool, error)
	// IsSymlink reports whether path itself is a symbolic link.
	IsSymlink(path string) (bool, error)
	// Size returns the size of the file at path in bytes.
	Size(path string) (int64, error)
	// ReadAll returns the full content of the file at path.
	ReadAll(path string) ([]byte, error)
	// Copy atomically copies src to dst and returns the number of bytes
	// written. Without overwrite an existing dst is an error wrapping
	// fs.ErrExist.
	Copy(src, dst string, overwrite bool) (int64, error)
	// Mkdir creates a single directory; its parent must exist.
	Mkdir(path string) error
	// MkdirAll creates a directory together with any missing ancestors.
	MkdirAll(path string) error
	// ListChildren returns the direct children of a directory.
	ListChildren(path string) ([]DirEntry, error)
	// Remove deletes a file, a symbolic link or an empty directory. Links are
	// never followed.
	Remove(path string) error
}

// AferoFS implements FS on top of an afero.Fs.
type AferoFS struct {
	base afero.Fs
}

// New returns an FS backed by base.
func New(base afero.Fs) *AferoFS {
	return &AferoFS{base: base}
}

// NewOS returns an FS backed by the host filesystem.
func NewOS() *AferoFS {
	return New(afero.NewOsFs())
}

// lstat describes path itself when the backend can tell links apart, and
// falls back to Stat otherwise.
func (a *AferoFS) lstat(path string) (fs.FileInfo, error) {
	if l, ok := a.base.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return a.base.Stat(path)
}

// Exists reports whether an entry is present at path. A dangling link
// counts as present.
func (a *AferoFS) Exists(path string) (bool, error) {
	if _, err := a.lstat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, wrap("stat", path, err)
	}
	return true, nil
}

func (a *AferoFS) IsDir(path string) (bool, error) {
	info, err := a.base.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, wrap("stat", path, err)
	}
	return info.IsDir(), nil
}

func (a *AferoFS) IsSymlink(path string) (bool, error) {
	info, err := a.lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, wrap("stat", path, err)
	}
	return info.Mode()&fs.ModeSymlink != 0, nil
}

func (a *AferoFS) Size(path string) (int64, error) {
	info, err := a.base.Stat(path)
	if err != nil {
		return 0, wrap("stat", path, err)
	}
	return info.Size(), nil
}

func (a *AferoFS) ReadAll(path string) ([]byte, error) {
	data, err := afero.ReadFile(a.base, path)
	if err != nil {
		return nil, wrap("read", path, err)
	}
	return data, nil
}

// Copy streams src into a temp file next to dst and renames it into place,
// so readers of dst never observe a partially written file.
func (a *AferoFS) Copy(src, dst string, overwrite bool) (int64, error) {
	if !overwrite {
		exists, err := afero.Exists(a.base, dst)
		if err != nil {
			return 0, wrap("copy", dst, err)
		}
		if exists {
			return 0, wrap("copy", dst, fs.ErrExist)
		}
	}

	in, err := a.base.Open(src)
	if err != nil {
		return 0, wrap("copy", src, err)
	}
	defer func() {
		_ = in.Close()
	}()

	tmp, err := afero.TempFile(a.base, filepath.Dir(dst), TempPrefix+"*")
	if err != nil {
		return 0, wrap("copy", dst, err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = a.base.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, in)
	if err != nil {
		return 0, wrap("copy", src, err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, wrap("copy", dst, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, wrap("copy", dst, err)
	}
	if err := a.base.Chmod(tmpPath, fileMode); err != nil {
		return 0, wrap("copy", dst, err)
	}
	if err := a.base.Rename(tmpPath, dst); err != nil {
		return 0, wrap("copy", dst, err)
	}

	success = true
	return n, nil
}

func (a *AferoFS) Mkdir(path string) error {
	if err := a.base.Mkdir(path, dirMode); err != nil {
		return wrap("mkdir", path, err)
	}
	return nil
}

func (a *AferoFS) MkdirAll(path string) error {
	if err := a.base.MkdirAll(path, dirMode); err != nil {
		return wrap("mkdir", path, err)
	}
	return nil
}

func (a *AferoFS) ListChildren(path string) ([]DirEntry, error) {
	infos, err := afero.ReadDir(a.base, path)
	if err != nil {
		return nil, wrap("list", path, err)
	}

	entries := make([]DirEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, DirEntry{Name: info.Name(), IsDir: info.IsDir()})
	}
	return entries, nil
}

// Remove refuses non-empty directories on every backend, including the
// in-memory one, which would otherwise drop the whole subtree. A link to a
// directory is removed as a link.
func (a *AferoFS) Remove(path string) error {
	info, err := a.lstat(path)
	if err != nil {
		return wrap("remove", path, err)
	}
	if info.IsDir() {
		empty, err := afero.IsEmpty(a.base, path)
		if err != nil {
			return wrap("remove", path, err)
		}
		if !empty {
			return wrap("remove", path, ErrNotEmpty)
		}
	}
	if err := a.base.Remove(path); err != nil {
		return wrap("remove", path, err)
	}
	return nil
}

func wrap(op, path string, err error) error {
	return &fs.PathError{Op: op, Path: path, Err: err}
}
