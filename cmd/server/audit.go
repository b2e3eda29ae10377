package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/Brownie44l1/gesture-api/internal/audit"
	"github.com/Brownie44l1/gesture-api/internal/dataset"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// auditReader is the read side of audit.Store.
type auditReader interface {
	ClassificationCounts(ctx context.Context, since time.Time) ([]audit.LabelCount, error)
	CaptureCount(ctx context.Context, split, label string) (int, error)
}

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query or reset the PostgreSQL audit log",
	}
	cmd.PersistentFlags().StringVar(&a.cfg.DatabaseURL, "db", a.cfg.DatabaseURL, "PostgreSQL connection string")
	cmd.AddCommand(newAuditSummaryCmd(a), newAuditResetCmd(a))
	return cmd
}

func openAudit(ctx context.Context, a *app) (*audit.Store, error) {
	if a.cfg.DatabaseURL == "" {
		return nil, errors.New("audit log requires --db or DATABASE_URL")
	}
	store, err := audit.New(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "audit store")
	}
	return store, nil
}

func newAuditSummaryCmd(a *app) *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print classifications per label and captures per split and label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if since <= 0 {
				return errors.Newf("--since must be positive, got %s", since)
			}
			stats, err := dataset.New(a.cfg.DatasetDir).Stats()
			if err != nil {
				return err
			}
			store, err := openAudit(cmd.Context(), a)
			if err != nil {
				return err
			}
			defer store.Close()
			return writeAuditSummary(cmd.Context(), cmd.OutOrStdout(), store, stats, time.Now().Add(-since))
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Count classifications newer than this")
	return cmd
}

// writeAuditSummary prints classification counts since the given time, then
// the recorded captures next to the samples on disk for every label in stats.
func writeAuditSummary(ctx context.Context, w io.Writer, r auditReader, stats dataset.Stats, since time.Time) error {
	counts, err := r.ClassificationCounts(ctx, since)
	if err != nil {
		return errors.Wrap(err, "classification counts")
	}

	total := 0
	for _, c := range counts {
		total += c.Count
	}
	fmt.Fprintf(w, "classifications since %s (%d)\n", since.UTC().Format(time.RFC3339), total)
	for _, c := range counts {
		fmt.Fprintf(w, "  %-20s %d\n", c.Label, c.Count)
	}

	fmt.Fprintln(w, "captures (recorded/on disk)")
	for _, split := range dataset.Splits {
		names := make([]string, 0, len(stats[split]))
		for name := range stats[split] {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			n, err := r.CaptureCount(ctx, split, name)
			if err != nil {
				return errors.Wrapf(err, "capture count %s/%s", split, name)
			}
			fmt.Fprintf(w, "  %-5s %-20s %d/%d\n", split, name, n, stats[split][name])
		}
	}
	return nil
}

func newAuditResetCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop the audit tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to drop the audit tables without --yes")
			}
			store, err := openAudit(cmd.Context(), a)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Reset(cmd.Context()); err != nil {
				return errors.Wrap(err, "reset audit log")
			}
			a.logger.Info().Msg("audit tables dropped")
			fmt.Fprintln(cmd.OutOrStdout(), "audit log reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm dropping the audit tables")
	return cmd
}
