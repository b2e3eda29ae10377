// Package errs defines the failure kinds shared by the gesture pipeline.
// Use errors.Is() to check for a specific kind; callers wrap these with
// errors.Wrap or errors.Mark so the cause survives added context.
package errs

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrModelNotReady indicates the model has not reached the Ready state,
	// or the label space could not be resolved.
	ErrModelNotReady = errors.New("gesture: model not ready")

	// ErrInvalidInput is a grouping key and is never returned on its own.
	// Callers test for request validation failures with IsInvalidInput,
	// not errors.Is(err, ErrInvalidInput).
	ErrInvalidInput = errors.New("gesture: invalid input")

	// ErrDecode indicates the image bytes could not be decoded.
	ErrDecode = errors.New("gesture: image decode failed")

	// ErrInference indicates the inference runtime failed or returned an unusable vector.
	ErrInference = errors.New("gesture: inference failed")

	// ErrStorage indicates a filesystem operation failed while persisting a sample.
	ErrStorage = errors.New("gesture: storage error")

	// ErrResolution indicates the training split could not be enumerated.
	ErrResolution = errors.New("gesture: label resolution failed")
)

// Validation failures. IsInvalidInput groups them under ErrInvalidInput.
var (
	ErrNoImage      = errors.New("gesture: no image provided")
	ErrMissingLabel = errors.New("gesture: label required")
	ErrInvalidSplit = errors.New("gesture: invalid dataset split")
	ErrInvalidLabel = errors.New("gesture: invalid label")
)

// IsInvalidInput reports whether err is any request validation failure.
func IsInvalidInput(err error) bool {
	return errors.IsAny(err, ErrInvalidInput, ErrNoImage, ErrMissingLabel, ErrInvalidSplit, ErrInvalidLabel)
}

// Kind returns the name of the first failure kind err matches, or "internal".
// It is used as a structured log field.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrModelNotReady):
		return "model_not_ready"
	case IsInvalidInput(err):
		return "invalid_input"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrInference):
		return "inference"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrResolution):
		return "resolution"
	default:
		return "internal"
	}
}
