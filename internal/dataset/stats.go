package dataset

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Brownie44l1/gesture-api/internal/errs"
	"github.com/Brownie44l1/gesture-api/internal/labels"
	"github.com/cockroachdb/errors"
)

// Stats counts stored samples: split -> label -> files.
type Stats map[string]map[string]int

// Total returns the number of samples in split.
func (s Stats) Total(split string) int {
	n := 0
	for _, c := range s[split] {
		n += c
	}
	return n
}

// Stats walks the dataset tree. A split directory that does not exist yet
// counts as empty. In-flight temp files are skipped. Label directories are
// matched the way label resolution matches classes.
func (c *Collector) Stats() (Stats, error) {
	stats := make(Stats, len(Splits))
	for _, split := range Splits {
		stats[split] = map[string]int{}

		splitDir := filepath.Join(c.root, split)
		labelDirs, err := os.ReadDir(splitDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "read %s", splitDir), errs.ErrStorage)
		}

		for _, ld := range labelDirs {
			if !labels.IsClassDir(splitDir, ld) {
				continue
			}
			files, err := os.ReadDir(filepath.Join(splitDir, ld.Name()))
			if err != nil {
				return nil, errors.Mark(errors.Wrapf(err, "read %s/%s", split, ld.Name()), errs.ErrStorage)
			}
			count := 0
			for _, f := range files {
				if f.Type().IsRegular() && !strings.HasPrefix(f.Name(), ".") {
					count++
				}
			}
			stats[split][ld.Name()] = count
		}
	}
	return stats, nil
}
