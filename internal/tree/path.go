package tree

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Relative returns the path of target relative to root. It fails when target
// does not live under root.
func Relative(root, target string) (string, error) {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is not under %s", target, root)
	}
	return rel, nil
}

// Resolve maps a relative path onto base.
func Resolve(base, rel string) string {
	return filepath.Join(base, rel)
}

// TopLevel returns the first segment of a relative path.
func TopLevel(rel string) string {
	if i := strings.IndexRune(rel, filepath.Separator); i >= 0 {
		return rel[:i]
	}
	return rel
}

// Within reports whether rel equals dir or lies beneath it.
func Within(rel, dir string) bool {
	return rel == dir || strings.HasPrefix(rel, dir+string(filepath.Separator))
}
