package preprocess

import "errors"

// Error kinds returned by the preprocessing steps. Callers match them with
// errors.Is; the wrapped message carries the detail.
var (
	ErrMissingImage     = errors.New("missing image")
	ErrInvalidBase64    = errors.New("invalid base64 payload")
	ErrEmptyImage       = errors.New("empty image data")
	ErrUnsupportedImage = errors.New("unsupported image data")
)
