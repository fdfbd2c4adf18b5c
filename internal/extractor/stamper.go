package extractor

import (
	"fmt"

	"github.com/barasher/go-exiftool"
	"github.com/sirupsen/logrus"
)

// ExifToolStamper writes the EXIF Software tag through a long-lived exiftool
// process. It is safe for concurrent use; go-exiftool serialises requests to
// the stay_open process itself.
type ExifToolStamper struct {
	et       *exiftool.Exiftool
	software string
}

// NewExifToolStamper starts exiftool. When software is empty or the binary
// is not installed it returns nil and logs why, so callers can treat a nil
// Stamper as disabled.
func NewExifToolStamper(software string, logger *logrus.Logger) Stamper {
	if software == "" {
		return nil
	}
	et, err := exiftool.NewExiftool()
	if err != nil {
		if logger != nil {
			logger.WithField("operation", "stamp").Warnf("exiftool unavailable, metadata stamping disabled: %v", err)
		}
		return nil
	}
	return &ExifToolStamper{et: et, software: software}
}

// Stamp sets the Software tag on the file at path in place.
func (s *ExifToolStamper) Stamp(path string) error {
	fm := exiftool.FileMetadata{File: path, Fields: map[string]interface{}{}}
	fm.SetString("Software", s.software)

	files := []exiftool.FileMetadata{fm}
	s.et.WriteMetadata(files)
	if files[0].Err != nil {
		return fmt.Errorf("stamp %s: %w", path, files[0].Err)
	}
	return nil
}

// Close stops the exiftool process.
func (s *ExifToolStamper) Close() error {
	return s.et.Close()
}
