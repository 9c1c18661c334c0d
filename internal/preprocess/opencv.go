//go:build gocv
// +build gocv

package preprocess

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// OpenCVPipeline decodes and resizes with OpenCV. IMReadColor yields BGR
// and applies EXIF orientation on its own.
type OpenCVPipeline struct {
	opts Options
}

func NewOpenCVPipeline(opts Options) (*OpenCVPipeline, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &OpenCVPipeline{opts: opts}, nil
}

func (p *OpenCVPipeline) FromBytes(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("%w: opencv could not decode %d bytes", ErrUnsupportedImage, len(data))
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Pt(p.opts.Size, p.opts.Size), 0, 0, gocv.InterpolationLinear)

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)

	return TensorFromHWC(rgb.ToBytes(), p.opts.Size, p.opts.Layout)
}
