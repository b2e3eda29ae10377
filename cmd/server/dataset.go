package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Brownie44l1/gesture-api/internal/dataset"
	"github.com/cockroachdb/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importExts = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}

func newDatasetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Inspect and extend the labeled sample store",
	}
	cmd.AddCommand(newDatasetStatsCmd(a), newDatasetImportCmd(a))
	return cmd
}

func newDatasetStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count samples per split and label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := dataset.New(a.cfg.DatasetDir).Stats()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, split := range dataset.Splits {
				fmt.Fprintf(out, "%s (%d)\n", split, stats.Total(split))
				names := make([]string, 0, len(stats[split]))
				for name := range stats[split] {
					names = append(names, name)
				}
				slices.Sort(names)
				for _, name := range names {
					fmt.Fprintf(out, "  %-20s %d\n", name, stats[split][name])
				}
			}
			return nil
		},
	}
}

type importOptions struct {
	split string
	label string
}

func newDatasetImportCmd(a *app) *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Copy every image in a directory into <split>/<label>/",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, a, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.split, "split", "s", dataset.SplitTrain, "Target split: train, test or val")
	cmd.Flags().StringVarP(&opts.label, "label", "l", "", "Class label for the imported images")
	cmd.MarkFlagRequired("label")
	return cmd
}

func runImport(cmd *cobra.Command, a *app, dir string, opts importOptions) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "read %s", dir)
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && slices.Contains(importExts, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return errors.Newf("no images found in %s", dir)
	}

	collector := dataset.New(a.cfg.DatasetDir)
	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription(fmt.Sprintf("importing %s/%s", opts.split, opts.label)),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowCount(),
	)

	stored := 0
	for _, f := range files {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return errors.Wrapf(err, "read %s", f)
		}
		rel, err := collector.Store(opts.split, opts.label, data)
		if err != nil {
			return errors.Wrapf(err, "store %s", f)
		}
		a.logger.Debug().Str("source", f).Str("path", rel).Msg("imported")
		stored++
		bar.Add(1)
	}
	bar.Finish()

	fmt.Fprintf(cmd.OutOrStdout(), "\nimported %d images into %s/%s\n", stored, opts.split, opts.label)
	return nil
}
