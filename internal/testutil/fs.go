package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/spf13/afero"
)

// WriteTree creates files under root. Keys are slash-separated relative
// paths; a key ending in "/" creates an empty directory.
func WriteTree(t *testing.T, fs afero.Fs, root string, files map[string]string) {
	t.Helper()

	if err := fs.MkdirAll(root, 0755); err != nil {
		t.Fatal(err)
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if rel[len(rel)-1] == '/' {
			if err := fs.MkdirAll(path, 0755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// ReadTree returns every file under root keyed by slash-separated relative
// path. Directories are keyed with a trailing "/" and an empty value.
func ReadTree(t *testing.T, fs afero.Fs, root string) map[string]string {
	t.Helper()

	out := make(map[string]string)
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			out[rel+"/"] = ""
			return nil
		}
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return err
		}
		out[rel] = string(data)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

// Keys returns the sorted keys of a tree map.
func Keys(tree map[string]string) []string {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DenyFs wraps an afero.Fs and fails every open of the listed paths with
// os.ErrPermission, the way an unreadable file or directory behaves on disk.
// Stat still succeeds.
type DenyFs struct {
	afero.Fs
	denied map[string]bool
}

// NewDenyFs returns a DenyFs over base denying paths.
func NewDenyFs(base afero.Fs, paths ...string) *DenyFs {
	denied := make(map[string]bool, len(paths))
	for _, p := range paths {
		denied[filepath.Clean(p)] = true
	}
	return &DenyFs{Fs: base, denied: denied}
}

func (d *DenyFs) Open(name string) (afero.File, error) {
	if d.denied[filepath.Clean(name)] {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return d.Fs.Open(name)
}

func (d *DenyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if d.denied[filepath.Clean(name)] {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return d.Fs.OpenFile(name, flag, perm)
}

func (d *DenyFs) Name() string {
	return "DenyFs"
}
