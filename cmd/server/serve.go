package main

import (
	"context"
	"net/http"
	"time"

	"github.com/Brownie44l1/gesture-api/internal/audit"
	"github.com/Brownie44l1/gesture-api/internal/classify"
	"github.com/Brownie44l1/gesture-api/internal/config"
	"github.com/Brownie44l1/gesture-api/internal/dataset"
	"github.com/Brownie44l1/gesture-api/internal/handlers"
	"github.com/Brownie44l1/gesture-api/internal/model"
	"github.com/Brownie44l1/gesture-api/internal/preprocess"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&a.cfg.Port, "port", "p", a.cfg.Port, "Listen port")
	f.StringVar(&a.cfg.ModelPath, "model", a.cfg.ModelPath, "Path to the ONNX model")
	f.StringVar(&a.cfg.MetadataPath, "metadata", a.cfg.MetadataPath, "Path to model_metadata.json")
	f.StringVar(&a.cfg.ORTLibrary, "ort-lib", a.cfg.ORTLibrary, "Path to the onnxruntime shared library")
	f.IntVar(&a.cfg.ImageSize, "image-size", a.cfg.ImageSize, "Model input resolution (square), used when the metadata does not declare one")
	f.StringVar(&a.cfg.Layout, "layout", a.cfg.Layout, "Model input layout: nhwc or nchw, used when the metadata does not declare one")
	f.Int64Var(&a.cfg.MaxUploadBytes, "max-upload", a.cfg.MaxUploadBytes, "Maximum upload size in bytes")
	f.StringVar(&a.cfg.DatabaseURL, "db", a.cfg.DatabaseURL, "PostgreSQL connection string for the audit log (optional)")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger

	preOpts, err := preprocessOptions(cfg, logger)
	if err != nil {
		return err
	}
	pre := preprocess.New(preOpts)

	var recorder audit.Recorder = audit.Nop{}
	if cfg.DatabaseURL != "" {
		store, err := audit.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "audit store")
		}
		defer store.Close()
		recorder = store
		logger.Info().Msg("audit log enabled")
	}

	logger.Info().Str("model", cfg.ModelPath).Str("dataset", cfg.DatasetDir).Msg("loading model")

	registry := model.NewRegistry(model.NewONNXLoader(model.ONNXConfig{
		ModelPath:         cfg.ModelPath,
		MetadataPath:      cfg.MetadataPath,
		SharedLibraryPath: cfg.ORTLibrary,
		InputShape:        pre.Shape(),
	}), logger)
	defer registry.Close()

	service := classify.New(registry, pre, logger)
	collector := dataset.New(cfg.DatasetDir)

	// Startup runs in the background; classify answers "Model not ready"
	// until it finishes.
	ready := service.Start(ctx, collector.TrainDir())
	go func() {
		<-ready
		logger.Info().
			Str("model_state", registry.State().String()).
			Strs("classes", service.Labels()).
			Bool("ready", service.Ready()).
			Msg("startup finished")
	}()

	handler := handlers.NewHandler(service, registry, collector, handlers.Options{
		Recorder:       recorder,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler.Routes(logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info().Str("port", cfg.Port).Msg("server starting")
	logger.Info().Msg("endpoints: GET /health, GET /labels, POST /classify, POST /dataset/{split}, GET /dataset/stats")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// preprocessOptions sizes the preprocessor from the model metadata. The
// configured size and layout only fill in what the metadata leaves open.
// An unreadable metadata file is reported by the model loader instead.
func preprocessOptions(cfg config.Config, logger zerolog.Logger) (preprocess.Options, error) {
	layout, err := preprocess.ParseLayout(cfg.Layout)
	if err != nil {
		return preprocess.Options{}, err
	}
	opts := preprocess.Options{Size: cfg.ImageSize, Layout: layout}

	meta, err := model.ReadMetadata(cfg.MetadataPath)
	if err != nil {
		return opts, nil
	}
	size, channelsFirst, ok := meta.InputGeometry()
	if !ok {
		return opts, nil
	}
	if size > 0 {
		opts.Size = size
	}
	opts.Layout = preprocess.NHWC
	if channelsFirst {
		opts.Layout = preprocess.NCHW
	}

	if opts.Size != cfg.ImageSize || opts.Layout != layout {
		logger.Warn().
			Int("configured_size", cfg.ImageSize).
			Str("configured_layout", string(layout)).
			Int("image_size", opts.Size).
			Str("layout", string(opts.Layout)).
			Msg("using input geometry from model metadata")
	}
	return opts, nil
}
