package preprocess

import (
	"fmt"
	"strings"
)

// Preprocessor turns raw image bytes into the model input tensor.
type Preprocessor interface {
	FromBytes(data []byte) ([]float32, error)
}

// Options describes the tensor the model expects.
type Options struct {
	Size   int
	Layout Layout
}

func (o Options) validate() error {
	if o.Size <= 0 {
		return fmt.Errorf("image size must be positive, got %d", o.Size)
	}
	if o.Layout != NHWC && o.Layout != NCHW {
		return fmt.Errorf("unknown tensor layout %q", o.Layout)
	}
	return nil
}

// New returns the preprocessor registered under name: "go" for the pure Go
// pipeline, "opencv" for the gocv one.
func New(name string, opts Options) (Preprocessor, error) {
	switch strings.ToLower(name) {
	case "", "go":
		p, err := NewPipeline(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "opencv", "gocv":
		p, err := NewOpenCVPipeline(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown preprocessor %q", name)
	}
}

// Pipeline is the pure Go preprocessor: decode, orient, resize, scale.
type Pipeline struct {
	opts Options
}

func NewPipeline(opts Options) (*Pipeline, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Pipeline{opts: opts}, nil
}

func (p *Pipeline) FromBytes(data []byte) ([]float32, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	resized := Resize(Flatten(img), p.opts.Size)
	return TensorFromHWC(RGBBytes(resized), p.opts.Size, p.opts.Layout)
}
