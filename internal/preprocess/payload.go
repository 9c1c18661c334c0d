package preprocess

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// StripDataURI drops everything up to and including the first comma, so
// "data:image/jpeg;base64,<data>" and "<data>" yield the same string. The
// prefix itself is not validated.
func StripDataURI(payload string) string {
	if _, data, found := strings.Cut(payload, ","); found {
		return data
	}
	return payload
}

// DecodePayload turns the "image" field of a request into raw image bytes.
func DecodePayload(payload string) ([]byte, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, ErrMissingImage
	}

	encoded := strings.TrimSpace(StripDataURI(payload))
	if encoded == "" {
		return nil, ErrEmptyImage
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// Some clients drop the padding.
		if !strings.HasSuffix(encoded, "=") {
			if raw, rawErr := base64.RawStdEncoding.DecodeString(encoded); rawErr == nil {
				data, err = raw, nil
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	return data, nil
}
