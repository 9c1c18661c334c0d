package model

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// onnxRunner binds one input and one output tensor to an AdvancedSession.
// The bound tensors make it unsafe for concurrent Run calls.
type onnxRunner struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func newONNXRunner(modelPath string, metadata Metadata) (*onnxRunner, error) {
	inputShape := ort.NewShape(metadata.InputShape...)
	outputShape := ort.NewShape(metadata.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &onnxRunner{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (r *onnxRunner) Run(input []float32) ([]float32, error) {
	copy(r.inputTensor.GetData(), input)

	if err := r.session.Run(); err != nil {
		return nil, err
	}

	// The output tensor is reused by the next Run.
	output := make([]float32, len(r.outputTensor.GetData()))
	copy(output, r.outputTensor.GetData())
	return output, nil
}

func (r *onnxRunner) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if r.session != nil {
		keep(r.session.Destroy())
	}
	if r.inputTensor != nil {
		keep(r.inputTensor.Destroy())
	}
	if r.outputTensor != nil {
		keep(r.outputTensor.Destroy())
	}
	keep(ort.DestroyEnvironment())
	return firstErr
}
