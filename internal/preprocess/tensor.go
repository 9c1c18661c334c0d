package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/nfnt/resize"
)

// Layout is the memory order of the model input tensor.
type Layout string

const (
	// NHWC is channels-last, the Keras default.
	NHWC Layout = "NHWC"
	// NCHW is channels-first.
	NCHW Layout = "NCHW"
)

// ParseLayout accepts "NHWC" or "NCHW" in any case; empty means NHWC.
func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToUpper(s)) {
	case "", NHWC:
		return NHWC, nil
	case NCHW:
		return NCHW, nil
	default:
		return "", fmt.Errorf("unknown tensor layout %q", s)
	}
}

const channels = 3

// Flatten drops the alpha channel, keeping the stored color values of
// every pixel, transparent ones included.
func Flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+4*b.Dx()], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
	} else {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				dst.SetNRGBA(x-b.Min.X, y-b.Min.Y, color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA))
			}
		}
	}

	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// Resize stretches img to exactly size x size pixels, ignoring the original
// aspect ratio.
func Resize(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return img
	}
	return resize.Resize(uint(size), uint(size), img, resize.Bilinear)
}

// RGBBytes returns the 8-bit RGB values of img in row-major HWC order.
func RGBBytes(img image.Image) []uint8 {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	pix := make([]uint8, 0, channels*width*height)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			pix = append(pix, c.R, c.G, c.B)
		}
	}
	return pix
}

// TensorFromHWC scales 8-bit RGB values in HWC order into [0,1] and lays
// them out for a batch of one image of size x size.
func TensorFromHWC(pix []uint8, size int, layout Layout) ([]float32, error) {
	plane := size * size
	if len(pix) != channels*plane {
		return nil, fmt.Errorf("expected %d pixel values, got %d", channels*plane, len(pix))
	}

	data := make([]float32, channels*plane)
	for i := 0; i < plane; i++ {
		for c := 0; c < channels; c++ {
			v := float32(pix[i*channels+c]) / 255.0
			if layout == NCHW {
				data[c*plane+i] = v
			} else {
				data[i*channels+c] = v
			}
		}
	}
	return data, nil
}
