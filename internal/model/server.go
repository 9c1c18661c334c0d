package model

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/apex/log"
	ort "github.com/yalue/onnxruntime_go"
)

// runner executes one forward pass. Implementations need not be safe for
// concurrent use; Server serializes calls.
type runner interface {
	Run(input []float32) ([]float32, error)
	Close() error
}

// Server owns the loaded model. It is created once at startup and shared
// by all requests.
type Server struct {
	Metadata Metadata

	mu     sync.Mutex
	runner runner
}

// Options tunes how the ONNX runtime is loaded.
type Options struct {
	// SharedLibraryPath points at libonnxruntime; empty uses the default
	// lookup of the runtime bindings.
	SharedLibraryPath string
}

// NewServer loads the model at modelPath and its metadata sidecar. Any
// error here means the process cannot serve.
func NewServer(modelPath, metadataPath string, opts Options) (*Server, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model not found: %w", err)
	}

	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}
	if err := metadata.Validate(); err != nil {
		return nil, err
	}

	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	r, err := newONNXRunner(modelPath, metadata)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, err
	}

	log.WithFields(log.Fields{
		"model":   modelPath,
		"input":   metadata.InputShape,
		"output":  metadata.OutputShape,
		"classes": metadata.Classes,
		"layout":  metadata.Layout,
	}).Info("model loaded")

	return newServer(metadata, r), nil
}

func newServer(metadata Metadata, r runner) *Server {
	return &Server{Metadata: metadata, runner: r}
}

// Predict runs the model on one preprocessed tensor and returns the most
// likely class. Calls into the model are serialized.
func (s *Server) Predict(ctx context.Context, input []float32) (*Prediction, error) {
	if want := s.Metadata.InputSize(); len(input) != want {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInputSize, want, len(input))
	}

	s.mu.Lock()
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	output, err := s.runner.Run(input)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}

	if s.Metadata.ApplySoftmax {
		output = softmax(output)
	}
	return selectPrediction(output, s.Metadata.Classes)
}

// Labels returns the label set in model output order.
func (s *Server) Labels() []string {
	return append([]string(nil), s.Metadata.Classes...)
}

// Close releases the session and the ONNX environment.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runner == nil {
		return nil
	}
	err := s.runner.Close()
	s.runner = nil
	return err
}

// selectPrediction picks the argmax of probs. The output width must match
// the label set exactly.
func selectPrediction(probs []float32, labels []string) (*Prediction, error) {
	if len(probs) == 0 {
		return nil, fmt.Errorf("%w: empty model output", ErrInference)
	}
	if len(probs) != len(labels) {
		return nil, fmt.Errorf("%w: %d outputs, %d labels", ErrLabelMismatch, len(probs), len(labels))
	}

	maxIdx := 0
	for i, p := range probs {
		if p > probs[maxIdx] {
			maxIdx = i
		}
	}

	return &Prediction{
		Class:         labels[maxIdx],
		Confidence:    probs[maxIdx],
		Probabilities: probs,
	}, nil
}

func softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return logits
	}
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
