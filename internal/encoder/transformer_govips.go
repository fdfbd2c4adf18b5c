//go:build govips && cgo

package encoder

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
)

type govipsTransformer struct{}

func (govipsTransformer) Name() string {
	return "libvips"
}

func (govipsTransformer) Decode(ctx context.Context, data []byte) (Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	if err := ref.AutoRotate(); err != nil {
		ref.Close()
		return nil, fmt.Errorf("auto-rotate: %w", err)
	}
	if ref.Width() <= 0 || ref.Height() <= 0 {
		ref.Close()
		return nil, ErrEmptyImage
	}
	return &govipsImage{ref: ref}, nil
}

type govipsImage struct {
	ref *vips.ImageRef
}

func (i *govipsImage) Width() int  { return i.ref.Width() }
func (i *govipsImage) Height() int { return i.ref.Height() }

func (i *govipsImage) Render(ctx context.Context, width int, format Format, quality Quality) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img, err := i.ref.Copy()
	if err != nil {
		return nil, fmt.Errorf("copy image: %w", err)
	}
	defer img.Close()

	if w := targetWidth(img.Width(), width); w != img.Width() {
		scale := float64(w) / float64(img.Width())
		if err := img.Resize(scale, vips.KernelLanczos3); err != nil {
			return nil, fmt.Errorf("resize image: %w", err)
		}
	}
	return exportGovipsImage(img, format, quality)
}

func (i *govipsImage) Close() {
	if i.ref != nil {
		i.ref.Close()
		i.ref = nil
	}
}

func exportGovipsImage(img *vips.ImageRef, format Format, quality Quality) ([]byte, error) {
	q, ok := quality.For(format)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	q = clampQuality(q)

	switch format {
	case FormatJPEG:
		params := vips.NewJpegExportParams()
		params.Quality = q
		params.OptimizeCoding = true
		params.Interlace = true
		params.TrellisQuant = true
		params.OvershootDeringing = true
		params.OptimizeScans = true
		params.QuantTable = 3
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case FormatPNG:
		params := vips.NewPngExportParams()
		params.Quality = q
		params.Compression = quality.PNGCompression
		params.Palette = true
		data, _, err := img.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case FormatWebP:
		params := vips.NewWebpExportParams()
		params.Quality = q
		data, _, err := img.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	case FormatAVIF:
		params := vips.NewAvifExportParams()
		params.Quality = q
		data, _, err := img.ExportAvif(params)
		if err != nil {
			return nil, fmt.Errorf("encode avif: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
