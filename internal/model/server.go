package model

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig locates the model artifact and the runtime library.
type ONNXConfig struct {
	ModelPath    string
	MetadataPath string
	// SharedLibraryPath overrides the onnxruntime library location. Empty
	// means the platform default.
	SharedLibraryPath string
	// InputShape is the tensor shape the caller will pass to Predict. When
	// set, loading fails unless the metadata accepts it, and it replaces
	// any dynamic dimensions in the metadata shape.
	InputShape []int64
}

var envMu sync.Mutex

// ReadMetadata parses model_metadata.json and fills in defaults.
func ReadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, errors.Wrap(err, "failed to read metadata")
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, errors.Wrap(err, "failed to parse metadata")
	}
	if meta.InputName == "" {
		meta.InputName = "input"
	}
	if meta.OutputName == "" {
		meta.OutputName = "output"
	}
	if len(meta.InputShape) == 0 || len(meta.OutputShape) == 0 {
		return Metadata{}, errors.Newf("metadata %s: input_shape and output_shape are required", path)
	}
	// Every request carries exactly one sample.
	meta.InputShape[0] = 1
	meta.OutputShape[0] = 1
	return meta, nil
}

// NewONNXLoader returns a Loader that opens the model with onnxruntime.
func NewONNXLoader(cfg ONNXConfig) Loader {
	return func(ctx context.Context) (Predictor, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		meta, err := ReadMetadata(cfg.MetadataPath)
		if err != nil {
			return nil, err
		}
		inputShape := meta.InputShape
		if len(cfg.InputShape) > 0 {
			if err := meta.CheckInput(cfg.InputShape); err != nil {
				return nil, err
			}
			inputShape = cfg.InputShape
		}
		if _, err := os.Stat(cfg.ModelPath); err != nil {
			return nil, errors.Wrap(err, "model artifact")
		}

		if err := initEnvironment(cfg.SharedLibraryPath); err != nil {
			return nil, err
		}

		session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
			[]string{meta.InputName}, []string{meta.OutputName}, nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create ONNX session")
		}

		return &onnxPredictor{
			session:     session,
			inputShape:  ort.NewShape(inputShape...),
			outputShape: ort.NewShape(meta.OutputShape...),
		}, nil
	}
}

func initEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "failed to initialize ONNX environment")
	}
	return nil
}

type onnxPredictor struct {
	session     *ort.DynamicAdvancedSession
	inputShape  ort.Shape
	outputShape ort.Shape
}

func (p *onnxPredictor) Predict(input []float32) ([]float32, error) {
	if int64(len(input)) != p.inputShape.FlattenedSize() {
		return nil, errors.Newf("expected %d input values, got %d", p.inputShape.FlattenedSize(), len(input))
	}

	inputTensor, err := ort.NewTensor(p.inputShape, input)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create input tensor")
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](p.outputShape)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create output tensor")
	}
	defer outputTensor.Destroy()

	if err := p.session.Run([]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor}); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}

	// The tensor memory is freed on return.
	out := outputTensor.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

func (p *onnxPredictor) Close() error {
	var err error
	if p.session != nil {
		err = p.session.Destroy()
	}
	envMu.Lock()
	defer envMu.Unlock()
	if destroyErr := ort.DestroyEnvironment(); err == nil {
		err = destroyErr
	}
	return err
}
