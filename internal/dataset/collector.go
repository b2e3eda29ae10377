// Package dataset stores labeled samples in the <split>/<label>/<file>
// layout that label resolution reads back at startup.
package dataset

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Brownie44l1/gesture-api/internal/errs"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const (
	SplitTrain = "train"
	SplitTest  = "test"
	SplitVal   = "val"
)

// Splits lists the valid dataset partitions in display order.
var Splits = []string{SplitTrain, SplitTest, SplitVal}

// ValidSplit reports whether s names one of the dataset partitions.
func ValidSplit(s string) bool {
	switch s {
	case SplitTrain, SplitTest, SplitVal:
		return true
	}
	return false
}

// Collector writes samples under root. It keeps no state between calls.
type Collector struct {
	root string
}

func New(root string) *Collector {
	return &Collector{root: root}
}

// Root returns the dataset directory.
func (c *Collector) Root() string { return c.root }

// TrainDir is the directory label resolution enumerates.
func (c *Collector) TrainDir() string { return filepath.Join(c.root, SplitTrain) }

// Store writes data to a new file under <split>/<label>/ and returns its
// path relative to the dataset root, always with forward slashes.
func (c *Collector) Store(split, label string, data []byte) (string, error) {
	if !ValidSplit(split) {
		return "", errors.Wrapf(errs.ErrInvalidSplit, "split %q", split)
	}
	if err := checkLabel(label); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errs.ErrNoImage
	}

	dir := filepath.Join(c.root, split, label)
	// MkdirAll succeeds when another request created the directory first.
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "create %s", dir), errs.ErrStorage)
	}

	name := uuid.NewString() + extension(data)
	if err := writeFile(dir, name, data); err != nil {
		return "", errors.Mark(err, errs.ErrStorage)
	}
	return path.Join(split, label, name), nil
}

func checkLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return errs.ErrMissingLabel
	}
	// " fist" would become a class distinct from "fist".
	if label != strings.TrimSpace(label) {
		return errors.Wrapf(errs.ErrInvalidLabel, "label %q has surrounding whitespace", label)
	}
	if label == "." || label == ".." || strings.ContainsAny(label, `/\`) || strings.ContainsRune(label, 0) {
		return errors.Wrapf(errs.ErrInvalidLabel, "label %q", label)
	}
	return nil
}

// writeFile writes to a temp file in dir and renames it into place, so a
// failed write never leaves a partial sample behind.
func writeFile(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return errors.Wrap(err, "write sample")
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errors.Wrap(err, "sync sample")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close sample")
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "chmod sample")
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "rename sample")
	}
	return nil
}

// extension picks a file suffix from the payload's magic bytes. Anything
// unrecognized is stored as .jpg, the capture client's format.
func extension(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ".jpg"
	}
}
