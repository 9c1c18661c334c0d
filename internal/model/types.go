package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Brownie44l1/waste-api/internal/preprocess"
)

// Error kinds returned by the model server.
var (
	ErrInvalidMetadata = errors.New("invalid model metadata")
	ErrLabelMismatch   = errors.New("label set does not match model output")
	ErrInputSize       = errors.New("input tensor has wrong size")
	ErrInference       = errors.New("inference failed")
)

// DefaultLabels is the label set of the waste classifier, in model output
// order.
var DefaultLabels = []string{"paper", "plastic", "can", "other"}

const DefaultImageSize = 224

type Metadata struct {
	InputName    string            `json:"input_name"`
	OutputName   string            `json:"output_name"`
	InputShape   []int64           `json:"input_shape"`
	OutputShape  []int64           `json:"output_shape"`
	Classes      []string          `json:"classes"`
	ImageSize    int               `json:"image_size"`
	Layout       preprocess.Layout `json:"layout"`
	ApplySoftmax bool              `json:"apply_softmax"`
}

// DefaultMetadata describes a Keras export: NHWC float input of one
// 224x224 RGB image and a softmax over the default labels.
func DefaultMetadata() Metadata {
	return Metadata{
		InputName:   "input",
		OutputName:  "output",
		InputShape:  []int64{1, DefaultImageSize, DefaultImageSize, 3},
		OutputShape: []int64{1, int64(len(DefaultLabels))},
		Classes:     append([]string(nil), DefaultLabels...),
		ImageSize:   DefaultImageSize,
		Layout:      preprocess.NHWC,
	}
}

// LoadMetadata reads the JSON sidecar at path over the defaults. A missing
// file yields the defaults.
func LoadMetadata(path string) (Metadata, error) {
	metadata := DefaultMetadata()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return metadata, nil
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	if err := json.Unmarshal(data, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return metadata, nil
}

// Validate checks the metadata is self-consistent. In particular the width
// of the model output must equal the number of labels.
func (m *Metadata) Validate() error {
	layout, err := preprocess.ParseLayout(string(m.Layout))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	m.Layout = layout

	if m.InputName == "" || m.OutputName == "" {
		return fmt.Errorf("%w: input and output names are required", ErrInvalidMetadata)
	}
	if m.ImageSize <= 0 {
		return fmt.Errorf("%w: image_size must be positive", ErrInvalidMetadata)
	}

	size := int64(m.ImageSize)
	want := []int64{1, size, size, 3}
	if layout == preprocess.NCHW {
		want = []int64{1, 3, size, size}
	}
	if !equalShape(m.InputShape, want) {
		return fmt.Errorf("%w: input_shape %v does not match %s image of %d, want %v",
			ErrInvalidMetadata, m.InputShape, layout, m.ImageSize, want)
	}

	if len(m.Classes) == 0 {
		return fmt.Errorf("%w: no classes", ErrInvalidMetadata)
	}
	if len(m.OutputShape) == 0 || shapeSize(m.OutputShape) != int64(len(m.Classes)) ||
		m.OutputShape[len(m.OutputShape)-1] != int64(len(m.Classes)) {
		return fmt.Errorf("%w: output_shape %v, %d classes", ErrLabelMismatch, m.OutputShape, len(m.Classes))
	}
	return nil
}

// InputSize is the number of float32 values in one input tensor.
func (m Metadata) InputSize() int {
	return int(shapeSize(m.InputShape))
}

// PreprocessOptions describes the tensor the model expects.
func (m Metadata) PreprocessOptions() preprocess.Options {
	return preprocess.Options{Size: m.ImageSize, Layout: m.Layout}
}

func shapeSize(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, dim := range shape {
		n *= dim
	}
	return n
}

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Prediction is the outcome of one forward pass.
type Prediction struct {
	Class         string
	Confidence    float32
	Probabilities []float32
}

type PredictionRequest struct {
	Image string `json:"image"`
}

type PredictionResponse struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
