package main

import (
	"github.com/Brownie44l1/gesture-api/internal/config"
	"github.com/Brownie44l1/gesture-api/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

// app carries the resolved configuration and logger to subcommands.
type app struct {
	cfg    config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	// Environment (and .env) values become the flag defaults, so an
	// explicit flag always wins.
	envErr := config.LoadDotEnv()
	cfg, err := config.FromEnv()
	if err != nil {
		envErr = err
		cfg = config.Default()
	}
	a.cfg = cfg

	root := &cobra.Command{
		Use:           "gesture-api",
		Short:         "Hand gesture classification and dataset capture service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return envErr
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			logger, err := logging.New(a.cfg.LogLevel, a.cfg.LogFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.DatasetDir, "dataset", a.cfg.DatasetDir, "Dataset root containing train/, test/ and val/")
	flags.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "Log level: debug, info, warn, error")
	flags.StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, "Log format: json or console")

	root.AddCommand(newServeCmd(a), newLabelsCmd(a), newDatasetCmd(a), newAuditCmd(a))
	return root
}
