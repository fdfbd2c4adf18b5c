package encoder

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
	_ "golang.org/x/image/webp"
)

type stdlibTransformer struct{}

func (stdlibTransformer) Name() string {
	return "imaging"
}

func (stdlibTransformer) Decode(ctx context.Context, data []byte) (Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrEmptyImage
	}
	return &stdImage{img: src}, nil
}

type stdImage struct {
	img image.Image
}

func (i *stdImage) Width() int  { return i.img.Bounds().Dx() }
func (i *stdImage) Height() int { return i.img.Bounds().Dy() }

func (i *stdImage) Render(ctx context.Context, width int, format Format, quality Quality) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	out := i.img
	if w := targetWidth(i.Width(), width); w != i.Width() {
		out = imaging.Resize(i.img, w, 0, imaging.Lanczos)
	}
	return encodeImage(out, format, quality)
}

func (i *stdImage) Close() {
	i.img = nil
}

func encodeImage(img image.Image, format Format, quality Quality) ([]byte, error) {
	q, ok := quality.For(format)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	q = clampQuality(q)

	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case FormatPNG:
		if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(pngLevel(quality.PNGCompression))); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case FormatWebP:
		opts := webp.Options{Quality: q, Method: 4}
		if err := webp.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	case FormatAVIF:
		opts := avif.Options{Quality: q, QualityAlpha: q, Speed: 8}
		if err := avif.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("encode avif: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return buf.Bytes(), nil
}
