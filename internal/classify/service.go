// Package classify maps an uploaded image to a gesture label.
package classify

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/Brownie44l1/gesture-api/internal/errs"
	"github.com/Brownie44l1/gesture-api/internal/labels"
	"github.com/Brownie44l1/gesture-api/internal/model"
	"github.com/Brownie44l1/gesture-api/internal/preprocess"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// Registry is the part of model.Registry the service depends on.
type Registry interface {
	Load(ctx context.Context)
	State() model.State
	Predict(input []float32) ([]float32, error)
}

// Result is the outcome of a single classification.
type Result struct {
	ClassID    int                `json:"classId"`
	Label      string             `json:"gesture"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores,omitempty"`
}

type Service struct {
	registry Registry
	pre      *preprocess.Preprocessor
	logger   zerolog.Logger

	labels atomic.Pointer[labels.Map]
}

func New(registry Registry, pre *preprocess.Preprocessor, logger zerolog.Logger) *Service {
	return &Service{
		registry: registry,
		pre:      pre,
		logger:   logger.With().Str("component", "classify").Logger(),
	}
}

// Start resolves the label space and loads the model concurrently. The
// returned channel is closed once both have finished, successfully or not.
// Failures are logged here and surface to callers as ErrModelNotReady.
func (s *Service) Start(ctx context.Context, trainDir string) <-chan struct{} {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		m, err := labels.Resolve(trainDir)
		if err != nil {
			s.logger.Error().Err(err).Str("train_dir", trainDir).Msg("label resolution failed; classification disabled")
			return
		}
		s.SetLabels(m)
		s.logger.Info().Int("classes", m.Len()).Strs("labels", m).Msg("labels resolved")
	}()

	go func() {
		defer wg.Done()
		s.registry.Load(ctx)
	}()

	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// SetLabels publishes the label map. Only the first call has any effect.
func (s *Service) SetLabels(m labels.Map) {
	cp := append(labels.Map(nil), m...)
	s.labels.CompareAndSwap(nil, &cp)
}

// Labels returns the resolved label map, or nil before resolution.
func (s *Service) Labels() labels.Map {
	if m := s.labels.Load(); m != nil {
		return *m
	}
	return nil
}

// Ready reports whether the model is loaded and a label space exists.
func (s *Service) Ready() bool {
	return s.registry.State() == model.StateReady && s.labels.Load() != nil
}

// Classify returns the highest scoring class for data. Readiness is
// checked before the payload is looked at.
func (s *Service) Classify(data []byte) (Result, error) {
	return s.classify(data, false)
}

// ClassifyWithScores is Classify plus the full per-class score map.
func (s *Service) ClassifyWithScores(data []byte) (Result, error) {
	return s.classify(data, true)
}

func (s *Service) classify(data []byte, withScores bool) (Result, error) {
	lm := s.labels.Load()
	if lm == nil || s.registry.State() != model.StateReady {
		return Result{}, errs.ErrModelNotReady
	}
	if len(data) == 0 {
		return Result{}, errs.ErrNoImage
	}

	tensor, err := s.pre.Preprocess(data)
	if err != nil {
		return Result{}, err
	}

	raw, err := s.registry.Predict(tensor.Data)
	if err != nil {
		return Result{}, err
	}

	scores, err := toFloat64(raw)
	if err != nil {
		return Result{}, err
	}

	// MaxIdx returns the first index on ties.
	classID := floats.MaxIdx(scores)
	res := Result{
		ClassID:    classID,
		Label:      labels.Unknown,
		Confidence: clampUnit(scores[classID]),
	}
	if name, ok := lm.Name(classID); ok {
		res.Label = name
	}

	if withScores {
		res.Scores = make(map[string]float64, len(scores))
		for i, v := range scores {
			if name, ok := lm.Name(i); ok {
				res.Scores[name] = v
			}
		}
	}
	return res, nil
}

func toFloat64(raw []float32) ([]float64, error) {
	if len(raw) == 0 {
		return nil, errors.Mark(errors.New("empty score vector"), errs.ErrInference)
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		f := float64(v)
		if math.IsNaN(f) {
			return nil, errors.Mark(errors.Newf("score %d is NaN", i), errs.ErrInference)
		}
		out[i] = f
	}
	return out, nil
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
