package model

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Metadata describes the exported model. It is stored next to the model
// artifact as model_metadata.json.
type Metadata struct {
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	ImageSize   int     `json:"image_size"`
}

// InputGeometry reads the square image size and channel position from a
// rank-4 InputShape with 3 channels. A dynamic spatial dimension falls back
// to ImageSize, and size is 0 when neither is known. ok is false when the
// channel position cannot be determined.
func (m Metadata) InputGeometry() (size int, channelsFirst bool, ok bool) {
	s := m.InputShape
	if len(s) != 4 {
		return 0, false, false
	}
	switch {
	case s[3] == 3:
		size = int(s[1])
	case s[1] == 3:
		size, channelsFirst = int(s[2]), true
	default:
		return 0, false, false
	}
	if size <= 0 {
		size = m.ImageSize
	}
	if size < 0 {
		size = 0
	}
	return size, channelsFirst, true
}

// CheckInput returns an error unless a tensor of shape want fits the model
// input. Dimensions the metadata leaves dynamic match anything.
func (m Metadata) CheckInput(want []int64) error {
	mismatch := errors.Newf("model input %v (image_size %d) does not match preprocessed shape %v",
		m.InputShape, m.ImageSize, want)
	if len(m.InputShape) != len(want) {
		return mismatch
	}
	for i := 1; i < len(want); i++ {
		if d := m.InputShape[i]; d > 0 && d != want[i] {
			return mismatch
		}
	}
	size, first, ok := m.InputGeometry()
	if !ok {
		return nil
	}
	wantSize, wantFirst, _ := Metadata{InputShape: want}.InputGeometry()
	if first != wantFirst || (size > 0 && size != wantSize) {
		return mismatch
	}
	return nil
}

// State is a position in the model lifecycle.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Predictor runs a single forward pass. Implementations must be safe for
// concurrent use.
type Predictor interface {
	Predict(input []float32) ([]float32, error)
	Close() error
}

// Loader produces a Predictor from the configured model artifact.
type Loader func(ctx context.Context) (Predictor, error)
