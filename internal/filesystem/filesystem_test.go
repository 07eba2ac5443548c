package filesystem

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemFS(t *testing.T, files map[string]string) *AferoFS {
	t.Helper()
	base := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, base.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(base, path, []byte(content), 0o644))
	}
	return New(base)
}

func TestExistsAndIsDir(t *testing.T) {
	fsys := newMemFS(t, map[string]string{"/src/a.txt": "a"})

	ok, err := fsys.Exists("/src/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fsys.Exists("/src/missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	isDir, err := fsys.IsDir("/src")
	require.NoError(t, err)
	assert.True(t, isDir)

	isDir, err = fsys.IsDir("/src/a.txt")
	require.NoError(t, err)
	assert.False(t, isDir)

	isDir, err = fsys.IsDir("/nowhere")
	require.NoError(t, err)
	assert.False(t, isDir)
}

func TestSizeAndReadAll(t *testing.T) {
	fsys := newMemFS(t, map[string]string{"/src/a.txt": "hello"})

	size, err := fsys.Size("/src/a.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)

	data, err := fsys.ReadAll("/src/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = fsys.ReadAll("/src/missing.txt")
	var pathErr *fs.PathError
	require.ErrorAs(t, err, &pathErr)
	assert.Equal(t, "read", pathErr.Op)
	assert.Equal(t, "/src/missing.txt", pathErr.Path)
}

func TestCopy(t *testing.T) {
	fsys := newMemFS(t, map[string]string{
		"/src/a.txt": "new content",
		"/dst/a.txt": "old",
	})

	t.Run("refuses existing target without overwrite", func(t *testing.T) {
		_, err := fsys.Copy("/src/a.txt", "/dst/a.txt", false)
		require.ErrorIs(t, err, fs.ErrExist)

		data, err := fsys.ReadAll("/dst/a.txt")
		require.NoError(t, err)
		assert.Equal(t, "old", string(data))
	})

	t.Run("overwrites existing target", func(t *testing.T) {
		n, err := fsys.Copy("/src/a.txt", "/dst/a.txt", true)
		require.NoError(t, err)
		assert.EqualValues(t, len("new content"), n)

		data, err := fsys.ReadAll("/dst/a.txt")
		require.NoError(t, err)
		assert.Equal(t, "new content", string(data))
	})

	t.Run("creates new target", func(t *testing.T) {
		_, err := fsys.Copy("/src/a.txt", "/dst/b.txt", false)
		require.NoError(t, err)

		data, err := fsys.ReadAll("/dst/b.txt")
		require.NoError(t, err)
		assert.Equal(t, "new content", string(data))
	})

	t.Run("leaves no temp files behind", func(t *testing.T) {
		children, err := fsys.ListChildren("/dst")
		require.NoError(t, err)
		for _, c := range children {
			assert.False(t, strings.HasPrefix(c.Name, TempPrefix), "leftover temp file %s", c.Name)
		}
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := fsys.Copy("/src/missing.txt", "/dst/missing.txt", true)
		require.Error(t, err)

		ok, err := fsys.Exists("/dst/missing.txt")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCopy_OnDisk(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("on disk"), 0o600))

	fsys := NewOS()
	_, err := fsys.Copy(src, dst, false)
	require.NoError(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "on disk", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestMkdir(t *testing.T) {
	fsys := newMemFS(t, nil)

	require.NoError(t, fsys.MkdirAll("/a/b/c"))
	isDir, err := fsys.IsDir("/a/b/c")
	require.NoError(t, err)
	assert.True(t, isDir)

	require.NoError(t, fsys.Mkdir("/a/b/d"))
	isDir, err = fsys.IsDir("/a/b/d")
	require.NoError(t, err)
	assert.True(t, isDir)

	require.Error(t, fsys.Mkdir("/a/b/d"))
}

func TestMkdir_OnDiskRequiresParent(t *testing.T) {
	dir := t.TempDir()
	fsys := NewOS()

	err := fsys.Mkdir(filepath.Join(dir, "missing", "child"))
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestListChildren(t *testing.T) {
	fsys := newMemFS(t, map[string]string{
		"/root/a.txt":     "a",
		"/root/sub/b.txt": "b",
	})

	children, err := fsys.ListChildren("/root")
	require.NoError(t, err)
	assert.ElementsMatch(t, []DirEntry{
		{Name: "a.txt"},
		{Name: "sub", IsDir: true},
	}, children)

	_, err = fsys.ListChildren("/missing")
	require.Error(t, err)
}

func TestRemove(t *testing.T) {
	fsys := newMemFS(t, map[string]string{
		"/root/a.txt":     "a",
		"/root/sub/b.txt": "b",
	})

	err := fsys.Remove("/root/sub")
	require.ErrorIs(t, err, ErrNotEmpty)

	require.NoError(t, fsys.Remove("/root/sub/b.txt"))
	require.NoError(t, fsys.Remove("/root/sub"))

	ok, err := fsys.Exists("/root/sub")
	require.NoError(t, err)
	assert.False(t, ok)

	require.Error(t, fsys.Remove("/root/sub"))
}

func TestSymlinks_OnDisk(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symbolic links need extra privileges on windows")
	}

	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "keep.txt"), []byte("keep"), 0o644))

	link := filepath.Join(dir, "link")
	dangling := filepath.Join(dir, "dangling")
	require.NoError(t, os.Symlink(target, link))
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing"), dangling))

	fsys := NewOS()

	isLink, err := fsys.IsSymlink(link)
	require.NoError(t, err)
	assert.True(t, isLink)

	isLink, err = fsys.IsSymlink(target)
	require.NoError(t, err)
	assert.False(t, isLink)

	isLink, err = fsys.IsSymlink(filepath.Join(dir, "nowhere"))
	require.NoError(t, err)
	assert.False(t, isLink)

	ok, err := fsys.Exists(dangling)
	require.NoError(t, err)
	assert.True(t, ok, "dangling link should count as present")

	children, err := fsys.ListChildren(dir)
	require.NoError(t, err)
	assert.Contains(t, children, DirEntry{Name: "link"})

	// removing a link to a non-empty directory drops only the link
	require.NoError(t, fsys.Remove(link))
	require.NoError(t, fsys.Remove(dangling))

	_, err = os.Lstat(link)
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(filepath.Join(target, "keep.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}
