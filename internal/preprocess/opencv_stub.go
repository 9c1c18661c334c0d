//go:build !gocv
// +build !gocv

package preprocess

import (
	"errors"
)

// OpenCVPipeline is unavailable without the gocv build tag.
type OpenCVPipeline struct{}

// NewOpenCVPipeline returns an error when built without the gocv tag.
func NewOpenCVPipeline(Options) (*OpenCVPipeline, error) {
	return nil, errors.New("opencv preprocessor requires the gocv build tag")
}

// FromBytes returns an error when built without the gocv tag.
func (p *OpenCVPipeline) FromBytes([]byte) ([]float32, error) {
	return nil, errors.New("gocv build tag is not enabled")
}
