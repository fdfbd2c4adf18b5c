package encoder

import "image/png"

// Quality holds the encoder settings for every output format. It is built
// once at startup and passed by value.
type Quality struct {
	JPEG int
	PNG  int
	// PNGCompression is a zlib style level from 0 (none) to 9 (best).
	PNGCompression int
	WebP           int
	AVIF           int
}

// DefaultQuality returns the stock encoder settings.
func DefaultQuality() Quality {
	return Quality{
		JPEG:           80,
		PNG:            80,
		PNGCompression: 9,
		WebP:           75,
		AVIF:           75,
	}
}

// For returns the quality value used for format, or false when the format
// has no entry.
func (q Quality) For(format Format) (int, bool) {
	switch format {
	case FormatJPEG:
		return q.JPEG, true
	case FormatPNG:
		return q.PNG, true
	case FormatWebP:
		return q.WebP, true
	case FormatAVIF:
		return q.AVIF, true
	default:
		return 0, false
	}
}

// pngLevel maps a 0-9 compression level onto the four levels image/png offers.
func pngLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
