//go:build integration

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/treesync/internal/testutil"
)

const defaultTimeout = 2 * time.Minute

// Harness builds the treesync binary once and runs it against scratch
// directories.
type Harness struct {
	t       *testing.T
	binary  string
	home    string
	lockDir string
}

// NewHarness compiles the binary into a temp directory.
func NewHarness(t *testing.T, ctx context.Context) *Harness {
	t.Helper()

	cmdDir, err := testutil.CommandDir("treesync")
	if err != nil {
		t.Fatalf("locate command: %v", err)
	}

	binDir := t.TempDir()
	binary := filepath.Join(binDir, "treesync")

	t.Logf("Building %s", binary)
	cmd := exec.CommandContext(ctx, "go", "build", "-o", binary, ".")
	cmd.Dir = cmdDir
	cmd.Stdout = &testWriter{t: t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: t, prefix: "[build] "}
	if err := cmd.Run(); err != nil {
		t.Fatalf("go build: %v", err)
	}

	return &Harness{
		t:       t,
		binary:  binary,
		home:    t.TempDir(),
		lockDir: t.TempDir(),
	}
}

// Run executes the binary and returns its output and exit code.
func (h *Harness) Run(ctx context.Context, args ...string) (string, string, int) {
	h.t.Helper()

	cmd := exec.CommandContext(ctx, h.binary, args...)
	cmd.Env = append(os.Environ(), "HOME="+h.home, "TMPDIR="+h.lockDir)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			h.t.Fatalf("exec failed: %v", err)
		}
		exitCode = exitErr.ExitCode()
	}
	return stdout.String(), stderr.String(), exitCode
}

// MustRun executes the binary and fails the test on a non-zero exit.
func (h *Harness) MustRun(ctx context.Context, args ...string) string {
	h.t.Helper()
	stdout, stderr, exitCode := h.Run(ctx, args...)
	if exitCode != 0 {
		h.t.Fatalf("command failed with exit code %d\nstdout: %s\nstderr: %s\nargs: %v",
			exitCode, stdout, stderr, args)
	}
	return stdout
}

// WriteFile writes content below dir, creating parents as needed.
func (h *Harness) WriteFile(dir, rel, content string) {
	h.t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		h.t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		h.t.Fatalf("write file: %v", err)
	}
}

// Snapshot returns every entry below root keyed by slash-separated relative
// path. Directories map to "/".
func (h *Harness) Snapshot(root string) map[string]string {
	h.t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
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
		if d.IsDir() {
			out[rel] = "/"
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[rel] = string(data)
		return nil
	})
	if err != nil {
		h.t.Fatalf("snapshot %s: %v", root, err)
	}
	return out
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)

func diffSnapshots(want, got map[string]string) string {
	var b strings.Builder
	for k, v := range want {
		if g, ok := got[k]; !ok {
			fmt.Fprintf(&b, "missing %s\n", k)
		} else if g != v {
			fmt.Fprintf(&b, "content of %s: want %q, got %q\n", k, v, g)
		}
	}
	for k := range got {
		if _, ok := want[k]; !ok {
			fmt.Fprintf(&b, "unexpected %s\n", k)
		}
	}
	return b.String()
}
