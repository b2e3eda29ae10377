package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Brownie44l1/gesture-api/internal/audit"
	"github.com/Brownie44l1/gesture-api/internal/classify"
	"github.com/Brownie44l1/gesture-api/internal/dataset"
	"github.com/Brownie44l1/gesture-api/internal/errs"
	"github.com/Brownie44l1/gesture-api/internal/labels"
	"github.com/Brownie44l1/gesture-api/internal/model"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// Classifier is the part of classify.Service the handlers use.
type Classifier interface {
	Classify(data []byte) (classify.Result, error)
	ClassifyWithScores(data []byte) (classify.Result, error)
	Labels() labels.Map
	Ready() bool
}

// ModelState reports the model lifecycle state.
type ModelState interface {
	State() model.State
}

// Collector is the part of dataset.Collector the handlers use.
type Collector interface {
	Store(split, label string, data []byte) (string, error)
	Stats() (dataset.Stats, error)
}

type Handler struct {
	classifier     Classifier
	model          ModelState
	collector      Collector
	recorder       audit.Recorder
	maxUploadBytes int64
}

type Options struct {
	// Recorder receives audit events. Nil disables auditing.
	Recorder       audit.Recorder
	MaxUploadBytes int64
}

func NewHandler(classifier Classifier, model ModelState, collector Collector, opts Options) *Handler {
	if opts.Recorder == nil {
		opts.Recorder = audit.Nop{}
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	return &Handler{
		classifier:     classifier,
		model:          model,
		collector:      collector,
		recorder:       opts.Recorder,
		maxUploadBytes: opts.MaxUploadBytes,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type captureResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"model":  h.model.State().String(),
		"labels": h.classifier.Labels().Len(),
		"ready":  h.classifier.Ready(),
	})
}

func (h *Handler) Labels(w http.ResponseWriter, r *http.Request) {
	m := h.classifier.Labels()
	if m == nil {
		writeError(w, http.StatusServiceUnavailable, "Model not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"labels": []string(m)})
}

// Classify handles POST /classify with the image in the "image" form field.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r)

	// A missing or unreadable upload is passed on as empty so the service
	// can report not-ready before no-image.
	data, _ := h.readImage(w, r)

	start := time.Now()
	var (
		res classify.Result
		err error
	)
	if withScores, _ := strconv.ParseBool(r.URL.Query().Get("scores")); withScores {
		res, err = h.classifier.ClassifyWithScores(data)
	} else {
		res, err = h.classifier.Classify(data)
	}
	if err != nil {
		status, msg := classifyError(err)
		logEvent(logger, status).Err(err).Str("kind", errs.Kind(err)).Msg("classification error")
		writeError(w, status, msg)
		return
	}
	elapsed := time.Since(start)

	logger.Info().
		Str("gesture", res.Label).
		Int("class_id", res.ClassID).
		Float64("confidence", res.Confidence).
		Dur("elapsed", elapsed).
		Msg("classified")

	if err := h.recorder.RecordClassification(r.Context(), audit.Classification{
		ClassID:    res.ClassID,
		Label:      res.Label,
		Confidence: res.Confidence,
		Latency:    elapsed,
	}); err != nil {
		logger.Warn().Err(err).Msg("audit classification failed")
	}

	writeJSON(w, http.StatusOK, res)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrModelNotReady):
		return http.StatusServiceUnavailable, "Model not ready"
	case errors.Is(err, errs.ErrNoImage):
		return http.StatusBadRequest, "No image provided"
	case errors.Is(err, errs.ErrDecode):
		return http.StatusBadRequest, "Invalid image format"
	default:
		return http.StatusInternalServerError, "Classification failed"
	}
}

// Capture handles POST /dataset/{split} with "image" and "label" form fields.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r)
	split := r.PathValue("split")

	if !dataset.ValidSplit(split) {
		writeError(w, http.StatusBadRequest, "Invalid dataset type")
		return
	}

	data, err := h.readImage(w, r)
	if err != nil {
		logger.Debug().Err(err).Msg("no image in capture request")
	}
	label := r.FormValue("label")

	rel, err := h.collector.Store(split, label, data)
	if err != nil {
		status, msg := captureError(err)
		logEvent(logger, status).Err(err).Str("kind", errs.Kind(err)).Str("split", split).Msg("dataset save error")
		writeError(w, status, msg)
		return
	}

	logger.Info().Str("split", split).Str("label", label).Str("path", rel).Int("bytes", len(data)).Msg("sample stored")

	if err := h.recorder.RecordCapture(r.Context(), audit.Capture{
		Split: split,
		Label: label,
		Path:  rel,
		Bytes: len(data),
	}); err != nil {
		logger.Warn().Err(err).Msg("audit capture failed")
	}

	writeJSON(w, http.StatusOK, captureResponse{Success: true, Path: rel})
}

func captureError(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrInvalidSplit):
		return http.StatusBadRequest, "Invalid dataset type"
	case errors.Is(err, errs.ErrMissingLabel):
		return http.StatusBadRequest, "Label required"
	case errors.Is(err, errs.ErrInvalidLabel):
		return http.StatusBadRequest, "Invalid label"
	case errors.Is(err, errs.ErrNoImage):
		return http.StatusBadRequest, "No image provided"
	default:
		return http.StatusInternalServerError, "Failed to save to dataset"
	}
}

func (h *Handler) DatasetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.collector.Stats()
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("dataset stats failed")
		writeError(w, http.StatusInternalServerError, "Failed to read dataset")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// readImage returns the bytes of the "image" multipart field.
func (h *Handler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		return nil, errors.Wrap(err, "parse form")
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, errors.Wrap(err, "image field")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.Wrap(err, "read image")
	}
	hlog.FromRequest(r).Debug().Str("filename", header.Filename).Int64("size", header.Size).Msg("received file")
	return data, nil
}

func logEvent(logger *zerolog.Logger, status int) *zerolog.Event {
	if status >= http.StatusInternalServerError {
		return logger.Error()
	}
	return logger.Warn()
}
