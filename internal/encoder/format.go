package encoder

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned when a derivative is requested in a format
// the active backend cannot write.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Format identifies an output encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatAVIF Format = "avif"
)

// Ext returns the file extension written for the format.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatPNG:
		return ".png"
	case FormatWebP:
		return ".webp"
	case FormatAVIF:
		return ".avif"
	default:
		return ""
	}
}

func (f Format) String() string {
	return string(f)
}

// FormatFromExt maps a file extension (with or without the dot, any case)
// to the format it holds. Only formats that get an original-format
// re-encode are recognised.
func FormatFromExt(ext string) (Format, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch ext {
	case "jpg", "jpeg":
		return FormatJPEG, true
	case "png":
		return FormatPNG, true
	case "webp":
		return FormatWebP, true
	default:
		return "", false
	}
}

// FormatFromPath is FormatFromExt applied to the extension of path.
func FormatFromPath(path string) (Format, bool) {
	return FormatFromExt(filepath.Ext(path))
}
