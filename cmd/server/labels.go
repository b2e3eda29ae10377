package main

import (
	"fmt"

	"github.com/Brownie44l1/gesture-api/internal/dataset"
	"github.com/Brownie44l1/gesture-api/internal/labels"
	"github.com/spf13/cobra"
)

func newLabelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "Print the class index assignment derived from the training split",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := labels.Resolve(dataset.New(a.cfg.DatasetDir).TrainDir())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, name := range m {
				fmt.Fprintf(out, "%d\t%s\n", i, name)
			}
			return nil
		},
	}
}
