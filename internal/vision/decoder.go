// Package vision provides image decoding and the object-detection provider
// consumed by the detection service.
package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// ErrInvalidImage is returned when uploaded bytes cannot be decoded into a
// supported image within the allowed dimension bounds.
var ErrInvalidImage = errors.New("invalid image")

// Dimension bounds for decoded images, in pixels.
const (
	MinDimension = 32
	MaxDimension = 8192
)

var supportedFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"webp": true,
}

// Decoder turns raw uploaded bytes into a decoded image.
type Decoder interface {
	Decode(data []byte) (image.Image, error)
}

// StdDecoder decodes JPEG, PNG, and WEBP through the stdlib image registry
// and enforces the configured dimension bounds.
type StdDecoder struct {
	MinW, MinH int
	MaxW, MaxH int
}

// NewStdDecoder returns a decoder with the default dimension bounds.
func NewStdDecoder() *StdDecoder {
	return &StdDecoder{
		MinW: MinDimension, MinH: MinDimension,
		MaxW: MaxDimension, MaxH: MaxDimension,
	}
}

// Decode validates and decodes data. All failures wrap ErrInvalidImage.
func (d *StdDecoder) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", ErrInvalidImage)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if !supportedFormats[format] {
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidImage, format)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < d.MinW || h < d.MinH {
		return nil, fmt.Errorf("%w: dimensions %dx%d smaller than minimum %dx%d",
			ErrInvalidImage, w, h, d.MinW, d.MinH)
	}
	if w > d.MaxW || h > d.MaxH {
		return nil, fmt.Errorf("%w: dimensions %dx%d exceed maximum %dx%d",
			ErrInvalidImage, w, h, d.MaxW, d.MaxH)
	}

	return img, nil
}
