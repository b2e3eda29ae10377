// Package config holds the service settings. Values come from defaults,
// then the environment (optionally seeded from a .env file), then flags.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Brownie44l1/gesture-api/internal/preprocess"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	DatasetDir     string
	ModelPath      string
	MetadataPath   string
	ORTLibrary     string
	ImageSize      int
	Layout         string
	MaxUploadBytes int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
}

func Default() Config {
	return Config{
		Port:           "8080",
		DatasetDir:     "dataset",
		ModelPath:      filepath.Join("models", "hand_data.onnx"),
		MetadataPath:   filepath.Join("models", "model_metadata.json"),
		ImageSize:      preprocess.DefaultSize,
		Layout:         string(preprocess.NHWC),
		MaxUploadBytes: 10 << 20,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// LoadDotEnv reads the given .env files into the process environment
// without overriding variables that are already set. Missing files are
// not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Wrapf(err, "load %s", f)
		}
	}
	return nil
}

// FromEnv returns Default with environment overrides applied.
func FromEnv() (Config, error) {
	c := Default()

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("GESTURE_DATASET_DIR", &c.DatasetDir)
	str("GESTURE_MODEL_PATH", &c.ModelPath)
	str("GESTURE_METADATA_PATH", &c.MetadataPath)
	str("ONNXRUNTIME_LIB", &c.ORTLibrary)
	str("GESTURE_TENSOR_LAYOUT", &c.Layout)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("DATABASE_URL", &c.DatabaseURL)

	if v := os.Getenv("GESTURE_IMAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, errors.Wrapf(err, "GESTURE_IMAGE_SIZE %q", v)
		}
		c.ImageSize = n
	}
	if v := os.Getenv("GESTURE_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c, errors.Wrapf(err, "GESTURE_MAX_UPLOAD_BYTES %q", v)
		}
		c.MaxUploadBytes = n
	}
	for key, dst := range map[string]*time.Duration{
		"GESTURE_READ_TIMEOUT":  &c.ReadTimeout,
		"GESTURE_WRITE_TIMEOUT": &c.WriteTimeout,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return c, errors.Wrapf(err, "%s %q", key, v)
			}
			*dst = d
		}
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.Newf("invalid port %q", c.Port)
	}
	if c.DatasetDir == "" {
		return errors.New("dataset directory is required")
	}
	if c.ImageSize <= 0 {
		return errors.Newf("image size must be positive, got %d", c.ImageSize)
	}
	if _, err := preprocess.ParseLayout(c.Layout); err != nil {
		return err
	}
	if c.MaxUploadBytes <= 0 {
		return errors.Newf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return errors.Newf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string { return ":" + c.Port }

// TrainDir is the split label resolution reads.
func (c Config) TrainDir() string { return filepath.Join(c.DatasetDir, "train") }
