package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Brownie44l1/gesture-api/internal/audit"
	"github.com/Brownie44l1/gesture-api/internal/config"
	"github.com/Brownie44l1/gesture-api/internal/dataset"
	"github.com/Brownie44l1/gesture-api/internal/preprocess"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLabelsCommand(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"thumbs_up", "fist", "open_palm"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "train", name), 0755))
	}

	out, err := execute(t, "labels", "--dataset", root)
	require.NoError(t, err)
	assert.Equal(t, "0\tfist\n1\topen_palm\n2\tthumbs_up\n", out)
}

func TestLabelsCommandMissingTrainSplit(t *testing.T) {
	_, err := execute(t, "labels", "--dataset", filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestDatasetImportAndStats(t *testing.T) {
	root := t.TempDir()
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.jpg"), []byte{0xFF, 0xD8, 0xFF, 0xE0}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.PNG"), []byte("\x89PNG\r\n\x1a\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("skip me"), 0644))

	out, err := execute(t, "dataset", "import", src, "--dataset", root, "--split", "val", "--label", "wave")
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 images into val/wave")

	stats, err := dataset.New(root).Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats[dataset.SplitVal]["wave"])

	out, err = execute(t, "dataset", "stats", "--dataset", root)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{"train (0)", "test (0)", "val (2)", "  wave                 2"}, lines)
}

func TestDatasetImportRejectsBadSplit(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.jpg"), []byte{0xFF, 0xD8}, 0644))

	_, err := execute(t, "dataset", "import", src, "--dataset", t.TempDir(), "--split", "foo", "--label", "wave")
	assert.Error(t, err)
}

func TestDatasetImportRequiresLabel(t *testing.T) {
	_, err := execute(t, "dataset", "import", t.TempDir(), "--dataset", t.TempDir())
	assert.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := execute(t, "labels", "--dataset", t.TempDir(), "--log-level", "loud")
	assert.Error(t, err)
}

func TestPreprocessOptionsFollowMetadata(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0644))
		return p
	}

	tests := []struct {
		name  string
		meta  string
		shape []int64
	}{
		{"nhwc 128", `{"input_shape":[-1,128,128,3],"output_shape":[-1,3],"image_size":128}`, []int64{1, 128, 128, 3}},
		{"nchw 96", `{"input_shape":[-1,3,96,96],"output_shape":[-1,3]}`, []int64{1, 3, 96, 96}},
		{"dynamic spatial", `{"input_shape":[-1,-1,-1,3],"output_shape":[-1,3],"image_size":160}`, []int64{1, 160, 160, 3}},
		{"unrecognized shape keeps config", `{"input_shape":[-1,784],"output_shape":[-1,10]}`, []int64{1, 224, 224, 3}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.MetadataPath = write(fmt.Sprintf("meta%d.json", i), tt.meta)

			opts, err := preprocessOptions(cfg, zerolog.Nop())
			require.NoError(t, err)
			assert.Equal(t, tt.shape, preprocess.New(opts).Shape())
		})
	}
}

func TestPreprocessOptionsWithoutMetadata(t *testing.T) {
	cfg := config.Default()
	cfg.MetadataPath = filepath.Join(t.TempDir(), "missing.json")
	cfg.ImageSize = 64
	cfg.Layout = "nchw"

	opts, err := preprocessOptions(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, preprocess.Options{Size: 64, Layout: preprocess.NCHW}, opts)
}

type fakeAudit struct {
	since    time.Time
	counts   []audit.LabelCount
	captures map[string]int
}

func (f *fakeAudit) ClassificationCounts(ctx context.Context, since time.Time) ([]audit.LabelCount, error) {
	f.since = since
	return f.counts, nil
}

func (f *fakeAudit) CaptureCount(ctx context.Context, split, label string) (int, error) {
	return f.captures[split+"/"+label], nil
}

func TestWriteAuditSummary(t *testing.T) {
	r := &fakeAudit{
		counts:   []audit.LabelCount{{Label: "fist", Count: 5}, {Label: "unknown", Count: 1}},
		captures: map[string]int{"train/fist": 3, "val/wave": 1},
	}
	stats := dataset.Stats{
		dataset.SplitTrain: {"wave": 0, "fist": 4},
		dataset.SplitVal:   {"wave": 1},
	}
	since := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	var out bytes.Buffer
	require.NoError(t, writeAuditSummary(context.Background(), &out, r, stats, since))
	assert.Equal(t, since, r.since)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		"classifications since 2026-10-01T12:00:00Z (6)",
		"  fist                 5",
		"  unknown              1",
		"captures (recorded/on disk)",
		"  train fist                 3/4",
		"  train wave                 0/0",
		"  val   wave                 1/1",
	}, lines)
}

func TestAuditCommandsNeedDatabaseAndConfirmation(t *testing.T) {
	_, err := execute(t, "audit", "summary", "--dataset", t.TempDir(), "--db", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--db")

	_, err = execute(t, "audit", "reset", "--db", "postgres://localhost/none")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	_, err = execute(t, "audit", "summary", "--dataset", t.TempDir(), "--db", "", "--since", "0s")
	assert.Error(t, err)
}
