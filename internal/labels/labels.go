// Package labels derives the ordered class-label space from the training split.
package labels

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/Brownie44l1/gesture-api/internal/errs"
	"github.com/cockroachdb/errors"
)

// Unknown is reported when a class index has no entry in the Map.
const Unknown = "unknown"

// Map is the ordered set of class names. Index i matches position i of the
// model's score vector.
type Map []string

// Len returns the number of classes.
func (m Map) Len() int { return len(m) }

// Name returns the label for class id, or false when id is out of range.
func (m Map) Name(id int) (string, bool) {
	if id < 0 || id >= len(m) {
		return "", false
	}
	return m[id], true
}

// Resolve lists the immediate subdirectories of trainDir, sorted
// lexicographically. Symlinks that point at directories count as classes.
func Resolve(trainDir string) (Map, error) {
	entries, err := os.ReadDir(trainDir)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read training split %s", trainDir), errs.ErrResolution)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if IsClassDir(trainDir, e) {
			names = append(names, e.Name())
		}
	}

	slices.Sort(names)
	return Map(slices.Compact(names)), nil
}

// IsClassDir reports whether entry e of dir holds a class: a directory, or a
// symlink that resolves to one.
func IsClassDir(dir string, e fs.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && info.IsDir()
}
