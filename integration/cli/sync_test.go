//go:build integration

package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCLISync(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	h := NewHarness(t, ctx)

	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")

	h.WriteFile(src, "a.txt", "alpha")
	h.WriteFile(src, "docs/readme.md", "# readme")
	h.WriteFile(src, "docs/deep/note.txt", "note")
	if err := os.MkdirAll(filepath.Join(src, "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	t.Run("A_InitialSync", func(t *testing.T) {
		out := h.MustRun(ctx, src, dst)
		if !strings.Contains(out, "destination directory created") {
			t.Errorf("expected destination creation to be reported:\n%s", out)
		}
		if diff := diffSnapshots(h.Snapshot(src), h.Snapshot(dst)); diff != "" {
			t.Errorf("destination differs from source:\n%s", diff)
		}
	})

	t.Run("B_NoOpSync", func(t *testing.T) {
		out := h.MustRun(ctx, "--log-format", "json", src, dst)
		if !strings.Contains(out, `"files_created":0`) || !strings.Contains(out, `"files_updated":0`) {
			t.Errorf("expected an empty summary on the second run:\n%s", out)
		}
	})

	t.Run("C_UpdateAndDelete", func(t *testing.T) {
		h.WriteFile(src, "a.txt", "alpha v2")
		if err := os.RemoveAll(filepath.Join(src, "docs", "deep")); err != nil {
			t.Fatalf("remove: %v", err)
		}
		h.WriteFile(dst, "orphan/x.txt", "stale")

		out := h.MustRun(ctx, src, dst)
		for _, want := range []string{"changed file", "removed file", "removed directory"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
		if diff := diffSnapshots(h.Snapshot(src), h.Snapshot(dst)); diff != "" {
			t.Errorf("destination differs from source:\n%s", diff)
		}
	})

	t.Run("D_DryRun", func(t *testing.T) {
		h.WriteFile(src, "new.txt", "new")
		before := h.Snapshot(dst)

		out := h.MustRun(ctx, "--dry-run", src, dst)
		if !strings.Contains(out, "[dry-run] new file") {
			t.Errorf("expected dry-run report of new file:\n%s", out)
		}
		if diff := diffSnapshots(before, h.Snapshot(dst)); diff != "" {
			t.Errorf("dry run modified destination:\n%s", diff)
		}
	})

	t.Run("E_Exclude", func(t *testing.T) {
		h.WriteFile(src, "build/out.bin", "binary")
		h.WriteFile(dst, "keep.local", "local only")

		h.MustRun(ctx, "--exclude", "build/", "--exclude", "*.local", src, dst)

		got := h.Snapshot(dst)
		if _, ok := got["build/out.bin"]; ok {
			t.Error("excluded source entry was copied")
		}
		if got["keep.local"] != "local only" {
			t.Error("excluded destination entry was removed")
		}
	})

	t.Run("F_SingleFileSource", func(t *testing.T) {
		single := filepath.Join(base, "single")
		h.MustRun(ctx, filepath.Join(src, "a.txt"), single)

		got := h.Snapshot(single)
		if got["a.txt"] != "alpha v2" {
			t.Errorf("expected a.txt copied into destination, got %v", got)
		}
	})
}

func TestCLIArgumentErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	h := NewHarness(t, ctx)
	base := t.TempDir()

	for _, tc := range []struct {
		name string
		args []string
		want string
	}{
		{name: "no arguments", args: nil, want: "expected 2 arguments"},
		{name: "missing source", args: []string{filepath.Join(base, "nope"), filepath.Join(base, "dst")}, want: "does not exist"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, stderr, exitCode := h.Run(ctx, tc.args...)
			if exitCode != 1 {
				t.Errorf("expected exit code 1, got %d", exitCode)
			}
			if !strings.Contains(stderr, tc.want) || !strings.Contains(stderr, "Usage:") {
				t.Errorf("expected %q and usage on stderr, got:\n%s", tc.want, stderr)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(base, "dst")); !os.IsNotExist(err) {
		t.Errorf("expected no destination created, stat err = %v", err)
	}
}

func TestCLIDestinationIsFile(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	h := NewHarness(t, ctx)
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	h.WriteFile(src, "a.txt", "alpha")
	h.WriteFile(base, "dst", "a file")

	_, _, exitCode := h.Run(ctx, src, dst)
	if exitCode != 1 {
		t.Errorf("expected exit code 1, got %d", exitCode)
	}
}
