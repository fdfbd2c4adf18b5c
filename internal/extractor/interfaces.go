package extractor

// Stamper writes provenance metadata into a derivative after it is in place.
type Stamper interface {
	Stamp(path string) error
	Close() error
}

// Metadata describes a source image as stored on disk.
type Metadata struct {
	Format string
	Width  int
	Height int
	// Orientation is the EXIF orientation tag (1-8); 1 when absent.
	Orientation int
	Size        int64
}

// DisplayWidth returns the width after EXIF orientation is applied.
// Orientations 5-8 rotate by 90 degrees and swap the axes.
func (m Metadata) DisplayWidth() int {
	if m.Rotated() {
		return m.Height
	}
	return m.Width
}

// DisplayHeight is the counterpart of DisplayWidth.
func (m Metadata) DisplayHeight() int {
	if m.Rotated() {
		return m.Width
	}
	return m.Height
}

// Rotated reports whether the orientation swaps width and height.
func (m Metadata) Rotated() bool {
	return m.Orientation >= 5 && m.Orientation <= 8
}

// OrientationName returns a human-readable description of the orientation tag.
func OrientationName(o int) string {
	switch o {
	case 1:
		return "Normal"
	case 2:
		return "Mirror horizontal"
	case 3:
		return "Rotate 180"
	case 4:
		return "Mirror vertical"
	case 5:
		return "Mirror horizontal and rotate 270 CW"
	case 6:
		return "Rotate 90 CW"
	case 7:
		return "Mirror horizontal and rotate 90 CW"
	case 8:
		return "Rotate 270 CW"
	default:
		return "Unknown"
	}
}
