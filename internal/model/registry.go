package model

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Brownie44l1/gesture-api/internal/errs"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Registry owns the model lifecycle:
//
//	Unloaded --Load--> Loading --ok--> Ready
//	                           --err-> Failed
//
// Ready and Failed are terminal. A restart is the only way to retry.
type Registry struct {
	loader Loader
	logger zerolog.Logger

	state     atomic.Int32
	predictor Predictor // written once before state becomes Ready
	loadErr   error     // written once before state becomes Failed

	mu     sync.Mutex // orders the Ready transition against Close
	closed bool
}

func NewRegistry(loader Loader, logger zerolog.Logger) *Registry {
	return &Registry{
		loader: loader,
		logger: logger.With().Str("component", "model").Logger(),
	}
}

// Load runs the loader once. Calls after the first return immediately.
// Load blocks until the loader finishes; callers that must not wait run it
// in a goroutine.
func (r *Registry) Load(ctx context.Context) {
	if !r.state.CompareAndSwap(int32(StateUnloaded), int32(StateLoading)) {
		return
	}

	start := time.Now()
	r.logger.Info().Msg("loading model")

	p, err := r.loader(ctx)
	if err == nil && p == nil {
		err = errors.New("loader returned no predictor")
	}
	if err != nil {
		r.loadErr = err
		r.state.Store(int32(StateFailed))
		r.logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("model load failed")
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		// Close already ran; nobody else will release this session.
		if err := p.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to release model loaded after close")
		}
		r.loadErr = errors.New("registry closed while loading")
		r.state.Store(int32(StateFailed))
		r.logger.Warn().Dur("elapsed", time.Since(start)).Msg("model load finished after close")
		return
	}
	r.predictor = p
	r.state.Store(int32(StateReady))
	r.mu.Unlock()
	r.logger.Info().Dur("elapsed", time.Since(start)).Msg("model ready")
}

func (r *Registry) State() State {
	return State(r.state.Load())
}

// Err returns the load failure, or nil unless the state is Failed.
func (r *Registry) Err() error {
	if r.State() != StateFailed {
		return nil
	}
	return r.loadErr
}

// Predict returns the raw score vector for a preprocessed input.
func (r *Registry) Predict(input []float32) ([]float32, error) {
	if r.State() != StateReady {
		return nil, errs.ErrModelNotReady
	}
	scores, err := r.predictor.Predict(input)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "predict"), errs.ErrInference)
	}
	return scores, nil
}

// Close releases the runtime session if the model was loaded. A load still
// in flight releases its session when it finishes. Calls after the first
// return nil.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.State() == StateReady {
		return r.predictor.Close()
	}
	return nil
}
