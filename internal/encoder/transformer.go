package encoder

import (
	"context"
	"errors"
)

// ErrEmptyImage is returned when a source decodes to zero pixels.
var ErrEmptyImage = errors.New("source image has invalid dimensions")

// Image is a decoded source held in memory so that every derivative of one
// file is rendered from a single decode.
type Image interface {
	// Width and Height are the natural size after EXIF auto-orientation.
	Width() int
	Height() int
	// Render resizes the image to width (0 or >= Width keeps the natural
	// size; the image is never enlarged) and encodes it in format.
	Render(ctx context.Context, width int, format Format, quality Quality) ([]byte, error)
	Close()
}

// Transformer decodes source bytes into an Image.
type Transformer interface {
	Decode(ctx context.Context, data []byte) (Image, error)
	Name() string
}

// New returns the transformer for the backend selected at build time.
func New() (Transformer, error) {
	return newTransformer()
}

// NewStd returns the pure Go transformer regardless of build tags.
func NewStd() Transformer {
	return stdlibTransformer{}
}

func targetWidth(natural, requested int) int {
	if requested <= 0 || requested >= natural {
		return natural
	}
	return requested
}
