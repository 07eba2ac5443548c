package tree

import (
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Excluder matches relative paths against gitignore-style patterns.
// A nil Excluder matches nothing.
type Excluder struct {
	patterns []string
	ignore   *gitignore.GitIgnore
}

// NewExcluder compiles patterns. Blank lines and comments are dropped; it
// returns nil when no pattern remains.
func NewExcluder(patterns []string) *Excluder {
	var lines []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		lines = append(lines, p)
	}
	if len(lines) == 0 {
		return nil
	}
	return &Excluder{
		patterns: lines,
		ignore:   gitignore.CompileIgnoreLines(lines...),
	}
}

// Patterns returns the compiled pattern lines.
func (x *Excluder) Patterns() []string {
	if x == nil {
		return nil
	}
	return x.patterns
}

// Match reports whether the entry at rel is excluded. Directories are matched
// with a trailing slash so that "dir/" patterns apply to them.
func (x *Excluder) Match(rel string, isDir bool) bool {
	if x == nil {
		return false
	}
	p := filepath.ToSlash(rel)
	if isDir {
		p += "/"
	}
	return x.ignore.MatchesPath(p)
}
