package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/waste-api/internal/preprocess"
)

// fakeRunner returns a fixed output and fails the test if two Run calls
// overlap.
type fakeRunner struct {
	t       *testing.T
	output  []float32
	err     error
	active  int32
	calls   int32
	closed  bool
	holdFor time.Duration
}

func (f *fakeRunner) Run(input []float32) ([]float32, error) {
	if atomic.AddInt32(&f.active, 1) != 1 {
		f.t.Errorf("concurrent Run detected")
	}
	defer atomic.AddInt32(&f.active, -1)
	atomic.AddInt32(&f.calls, 1)

	time.Sleep(f.holdFor)
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.output...), nil
}

func (f *fakeRunner) Close() error {
	f.closed = true
	return nil
}

func testInput(m Metadata) []float32 {
	return make([]float32, m.InputSize())
}

func TestDefaultMetadata_Valid(t *testing.T) {
	m := DefaultMetadata()
	require.NoError(t, m.Validate())
	require.Equal(t, 224*224*3, m.InputSize())
	require.Equal(t, []string{"paper", "plastic", "can", "other"}, m.Classes)
	require.Equal(t, preprocess.Options{Size: 224, Layout: preprocess.NHWC}, m.PreprocessOptions())
}

func TestMetadata_ValidateLabelMismatch(t *testing.T) {
	m := DefaultMetadata()
	m.OutputShape = []int64{1, 5}
	require.ErrorIs(t, m.Validate(), ErrLabelMismatch)

	m = DefaultMetadata()
	m.Classes = []string{"paper", "plastic", "can"}
	require.ErrorIs(t, m.Validate(), ErrLabelMismatch)
}

func TestMetadata_ValidateInputShape(t *testing.T) {
	m := DefaultMetadata()
	m.InputShape = []int64{1, 3, 224, 224}
	require.ErrorIs(t, m.Validate(), ErrInvalidMetadata)

	m.Layout = "nchw"
	require.NoError(t, m.Validate())
	require.Equal(t, preprocess.NCHW, m.Layout)

	m = DefaultMetadata()
	m.InputShape = []int64{2, 224, 224, 3}
	require.ErrorIs(t, m.Validate(), ErrInvalidMetadata)

	m = DefaultMetadata()
	m.Layout = "HWCN"
	require.ErrorIs(t, m.Validate(), ErrInvalidMetadata)

	m = DefaultMetadata()
	m.InputName = ""
	require.ErrorIs(t, m.Validate(), ErrInvalidMetadata)
}

func TestLoadMetadata(t *testing.T) {
	dir := t.TempDir()

	m, err := LoadMetadata(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	require.Equal(t, DefaultMetadata(), m)

	path := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"input_name": "input_1",
		"output_name": "dense_2",
		"apply_softmax": true
	}`), 0o644))

	m, err = LoadMetadata(path)
	require.NoError(t, err)
	require.Equal(t, "input_1", m.InputName)
	require.Equal(t, "dense_2", m.OutputName)
	require.True(t, m.ApplySoftmax)
	require.Equal(t, DefaultLabels, m.Classes)
	require.NoError(t, m.Validate())

	require.NoError(t, os.WriteFile(path, []byte(`{"input_name":`), 0o644))
	_, err = LoadMetadata(path)
	require.Error(t, err)
}

func TestNewServer_MissingModel(t *testing.T) {
	_, err := NewServer(filepath.Join(t.TempDir(), "waste_model.onnx"), "", Options{})
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNewServer_InvalidMetadata(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "waste_model.onnx")
	metaPath := filepath.Join(dir, "waste_model.json")
	require.NoError(t, os.WriteFile(modelPath, []byte("onnx"), 0o644))
	require.NoError(t, os.WriteFile(metaPath, []byte(`{"output_shape":[1,10]}`), 0o644))

	_, err := NewServer(modelPath, metaPath, Options{})
	require.ErrorIs(t, err, ErrLabelMismatch)
}

func TestServer_Predict(t *testing.T) {
	m := DefaultMetadata()
	s := newServer(m, &fakeRunner{t: t, output: []float32{0.1, 0.6, 0.2, 0.1}})

	p, err := s.Predict(context.Background(), testInput(m))
	require.NoError(t, err)
	require.Equal(t, "plastic", p.Class)
	require.InDelta(t, 0.6, p.Confidence, 1e-6)

	var sum float32
	var maxProb float32
	for _, v := range p.Probabilities {
		sum += v
		if v > maxProb {
			maxProb = v
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.Equal(t, maxProb, p.Confidence)
}

func TestServer_PredictSoftmax(t *testing.T) {
	m := DefaultMetadata()
	m.ApplySoftmax = true
	s := newServer(m, &fakeRunner{t: t, output: []float32{-1, 0.5, 3, 2}})

	p, err := s.Predict(context.Background(), testInput(m))
	require.NoError(t, err)
	require.Equal(t, "can", p.Class)
	require.Greater(t, p.Confidence, float32(0))
	require.LessOrEqual(t, p.Confidence, float32(1))

	var sum float32
	for _, v := range p.Probabilities {
		sum += v
	}
	require.InDelta(t, 1.0, sum, 1e-5)
}

func TestServer_PredictErrors(t *testing.T) {
	m := DefaultMetadata()

	s := newServer(m, &fakeRunner{t: t, output: []float32{1}})
	_, err := s.Predict(context.Background(), make([]float32, 10))
	require.ErrorIs(t, err, ErrInputSize)

	_, err = s.Predict(context.Background(), testInput(m))
	require.ErrorIs(t, err, ErrLabelMismatch)

	s = newServer(m, &fakeRunner{t: t, err: errors.New("session broken")})
	_, err = s.Predict(context.Background(), testInput(m))
	require.ErrorIs(t, err, ErrInference)
	require.Contains(t, err.Error(), "session broken")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Predict(ctx, testInput(m))
	require.ErrorIs(t, err, context.Canceled)
}

func TestServer_PredictSerialized(t *testing.T) {
	m := DefaultMetadata()
	runner := &fakeRunner{t: t, output: []float32{0.7, 0.1, 0.1, 0.1}, holdFor: 2 * time.Millisecond}
	s := newServer(m, runner)

	const n = 16
	results := make([]*Prediction, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := s.Predict(context.Background(), testInput(m))
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(n), atomic.LoadInt32(&runner.calls))
	for _, p := range results {
		require.NotNil(t, p)
		require.Equal(t, "paper", p.Class)
		require.Equal(t, results[0].Confidence, p.Confidence)
	}
}

func TestServer_Close(t *testing.T) {
	runner := &fakeRunner{t: t}
	s := newServer(DefaultMetadata(), runner)
	require.NoError(t, s.Close())
	require.True(t, runner.closed)
	require.NoError(t, s.Close())
}

func TestSelectPrediction_Ties(t *testing.T) {
	p, err := selectPrediction([]float32{0.25, 0.25, 0.25, 0.25}, DefaultLabels)
	require.NoError(t, err)
	require.Equal(t, "paper", p.Class)

	_, err = selectPrediction(nil, DefaultLabels)
	require.ErrorIs(t, err, ErrInference)
}
