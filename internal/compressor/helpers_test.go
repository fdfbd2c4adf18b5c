package compressor

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"image-optimizer-go/internal/encoder"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 120, A: 255})
		}
	}
	return img
}

func writeJPEG(t *testing.T, root, rel string, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(w, h), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return writeRaw(t, root, rel, buf.Bytes())
}

func writePNG(t *testing.T, root, rel string, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(w, h)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return writeRaw(t, root, rel, buf.Bytes())
}

func writeRaw(t *testing.T, root, rel string, data []byte) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return p
}

// outputFiles lists every file under dir as slash paths relative to dir,
// ignoring the run lock.
func outputFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == LockFileName {
			return nil
		}
		rel, _ := filepath.Rel(dir, p)
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatalf("walk output: %v", err)
	}
	sort.Strings(files)
	return files
}

func testSettings(root string) Settings {
	return Settings{
		InputRoot:  root,
		OutputRoot: filepath.Join(root, "optimized"),
		Extensions: []string{".jpg", ".jpeg", ".png", ".webp"},
		Quality:    encoder.DefaultQuality(),
		Ladder:     []int{96, 48, 32},
		Bulk:       ModeOptions{},
		OnDemand:   ModeOptions{AVIF: true, Responsive: true},
		Workers:    2,
		Lock:       true,
	}
}

func assertFiles(t *testing.T, got, want []string) {
	t.Helper()
	sort.Strings(want)
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("output files:\n  got  %v\n  want %v", got, want)
	}
}
