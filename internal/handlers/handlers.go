package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/apex/log"

	"github.com/Brownie44l1/waste-api/internal/model"
	"github.com/Brownie44l1/waste-api/internal/preprocess"
)

// Predictor runs the model on one preprocessed tensor.
type Predictor interface {
	Predict(ctx context.Context, input []float32) (*model.Prediction, error)
	Labels() []string
}

type Handler struct {
	predictor    Predictor
	preprocessor preprocess.Preprocessor
	maxBodyBytes int64
}

func NewHandler(predictor Predictor, preprocessor preprocess.Preprocessor, maxBodyBytes int64) *Handler {
	return &Handler{
		predictor:    predictor,
		preprocessor: preprocessor,
		maxBodyBytes: maxBodyBytes,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"classes": h.predictor.Labels(),
	})
}

// Predict classifies the base64 image in {"image": "..."}. A data-URI
// prefix is accepted and discarded.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, fmt.Errorf("failed to read request body: %w", err))
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.fail(w, r, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	data, err := preprocess.DecodePayload(req.Image)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.classify(w, r, data)
}

// PredictFromImage classifies a multipart upload in the "image" field.
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	if err := r.ParseMultipartForm(h.maxBodyBytes); err != nil {
		h.fail(w, r, fmt.Errorf("failed to parse form: %w", err))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: use 'image' as the form field name", preprocess.ErrMissingImage))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.fail(w, r, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	log.WithFields(log.Fields{
		"filename": header.Filename,
		"size":     header.Size,
	}).Debug("received upload")

	h.classify(w, r, data)
}

func (h *Handler) classify(w http.ResponseWriter, r *http.Request, data []byte) {
	input, err := h.preprocessor.FromBytes(data)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	prediction, err := h.predictor.Predict(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	log.WithFields(log.Fields{
		"class":      prediction.Class,
		"confidence": prediction.Confidence,
	}).Debug("prediction")

	writeJSON(w, http.StatusOK, model.PredictionResponse{
		Class:      prediction.Class,
		Confidence: prediction.Confidence,
	})
}

// fail is the single error boundary: every failure becomes a 500 carrying
// the raw message. The kind is only logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	log.WithFields(log.Fields{
		"path": r.URL.Path,
		"kind": errorKind(err),
	}).WithError(err).Warn("prediction failed")

	writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{Error: err.Error()})
}

func errorKind(err error) string {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, preprocess.ErrMissingImage):
		return "missing_image"
	case errors.Is(err, preprocess.ErrInvalidBase64):
		return "invalid_base64"
	case errors.Is(err, preprocess.ErrEmptyImage):
		return "empty_image"
	case errors.Is(err, preprocess.ErrUnsupportedImage):
		return "unsupported_image"
	case errors.As(err, &maxBytesErr):
		return "body_too_large"
	case errors.Is(err, model.ErrInputSize):
		return "input_size"
	case errors.Is(err, model.ErrLabelMismatch):
		return "label_mismatch"
	case errors.Is(err, model.ErrInference):
		return "inference"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "request"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}
