package extractor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp"
)

// ReadMetadata reads the format and dimensions of an encoded image without
// decoding its pixels. For JPEG sources the EXIF orientation is read as well;
// missing or unreadable EXIF leaves the orientation at 1.
func ReadMetadata(data []byte) (Metadata, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Metadata{}, fmt.Errorf("read image header: %w", err)
	}

	md := Metadata{
		Format:      format,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Orientation: 1,
		Size:        int64(len(data)),
	}
	if format == "jpeg" {
		if o, ok := readOrientation(data); ok {
			md.Orientation = o
		}
	}
	return md, nil
}

func readOrientation(data []byte) (int, bool) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, false
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0, false
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 0, false
	}
	return v, true
}

// ReadSoftware returns the EXIF Software tag of a JPEG, if any.
func ReadSoftware(data []byte) (string, bool) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return "", false
	}
	tag, err := x.Get(exif.Software)
	if err != nil {
		return "", false
	}
	val, err := tag.StringVal()
	if err != nil {
		return "", false
	}
	return val, true
}
