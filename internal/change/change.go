// Package change decides whether a destination file differs from its source.
package change

import (
	"bytes"

	"github.com/schaermu/treesync/internal/filesystem"
)

// Detector compares files by size, then by full content.
type Detector struct {
	fs filesystem.FS
}

// NewDetector creates a detector reading through fsys.
func NewDetector(fsys filesystem.FS) *Detector {
	return &Detector{fs: fsys}
}

// Unchanged reports whether dst holds exactly the bytes of src. Files of
// different size are reported as changed without reading their content.
func (d *Detector) Unchanged(src, dst string) (bool, error) {
	srcSize, err := d.fs.Size(src)
	if err != nil {
		return false, err
	}
	dstSize, err := d.fs.Size(dst)
	if err != nil {
		return false, err
	}
	if srcSize != dstSize {
		return false, nil
	}

	srcData, err := d.fs.ReadAll(src)
	if err != nil {
		return false, err
	}
	dstData, err := d.fs.ReadAll(dst)
	if err != nil {
		return false, err
	}
	return bytes.Equal(srcData, dstData), nil
}
