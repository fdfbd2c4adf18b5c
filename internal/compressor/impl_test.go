package compressor

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"image-optimizer-go/internal/encoder"
	"image-optimizer-go/internal/statistics"
)

// flakyTransformer wraps the std backend and fails every render in one format.
type flakyTransformer struct {
	encoder.Transformer
	failFormat encoder.Format
}

func (f flakyTransformer) Decode(ctx context.Context, data []byte) (encoder.Image, error) {
	img, err := f.Transformer.Decode(ctx, data)
	if err != nil {
		return nil, err
	}
	return flakyImage{Image: img, failFormat: f.failFormat}, nil
}

type flakyImage struct {
	encoder.Image
	failFormat encoder.Format
}

func (f flakyImage) Render(ctx context.Context, width int, format encoder.Format, q encoder.Quality) ([]byte, error) {
	if format == f.failFormat {
		return nil, errors.New("encoder exploded")
	}
	return f.Image.Render(ctx, width, format, q)
}

type recordingStamper struct {
	calls atomic.Int32
}

func (s *recordingStamper) Stamp(string) error {
	s.calls.Add(1)
	return nil
}

func (s *recordingStamper) Close() error { return nil }

func TestCompressVariantFailureDoesNotStopOthers(t *testing.T) {
	root := t.TempDir()
	src := writeJPEG(t, root, "a.jpg", 40, 40)
	settings := testSettings(root)

	stats := statistics.NewStatistics()
	comp := NewDefaultCompressor(settings, flakyTransformer{Transformer: encoder.NewStd(), failFormat: encoder.FormatWebP}, quietLogger(), stats)

	results, err := comp.Compress(context.Background(), CompressionParams{
		Mode:       ModeBulk,
		InputRoot:  root,
		OutputRoot: settings.OutputRoot,
		Sources:    []string{src},
	})
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if len(results) != 1 || results[0].Success() || results[0].FailedVariants() != 1 {
		t.Fatalf("results = %+v", results)
	}
	assertFiles(t, outputFiles(t, settings.OutputRoot), []string{"a.jpg"})
	if stats.VariantsFailed != 1 || stats.VariantsWritten != 1 {
		t.Fatalf("variants failed=%d written=%d", stats.VariantsFailed, stats.VariantsWritten)
	}
	if stats.SourcesPartial != 1 || stats.SourcesFailed != 0 || stats.Failures() != 1 {
		t.Fatalf("partial=%d failed=%d failures=%d, want 1/0/1", stats.SourcesPartial, stats.SourcesFailed, stats.Failures())
	}
}

func TestCompressTagsLogsWithRunID(t *testing.T) {
	root := t.TempDir()
	src := writePNG(t, root, "a.png", 16, 16)
	settings := testSettings(root)

	log, hook := logtest.NewNullLogger()
	comp := NewDefaultCompressor(settings, encoder.NewStd(), log, nil)
	if _, err := comp.Compress(context.Background(), CompressionParams{
		RunID:      "run-42",
		Mode:       ModeBulk,
		InputRoot:  root,
		OutputRoot: settings.OutputRoot,
		Sources:    []string{src},
	}); err != nil {
		t.Fatalf("Compress() error = %v", err)
	}

	entries := hook.AllEntries()
	if len(entries) == 0 {
		t.Fatal("no log entries recorded")
	}
	for _, e := range entries {
		if e.Data["run_id"] != "run-42" || e.Data["mode"] != "bulk" {
			t.Fatalf("entry %q missing run fields: %v", e.Message, e.Data)
		}
	}
}

func TestCompressKeepsInputOrder(t *testing.T) {
	root := t.TempDir()
	var sources []string
	for _, name := range []string{"c.png", "a.png", "b.png", "d.png"} {
		sources = append(sources, writePNG(t, root, name, 12, 12))
	}
	settings := testSettings(root)
	settings.Workers = 3

	results, err := NewDefaultCompressor(settings, encoder.NewStd(), quietLogger(), nil).Compress(context.Background(), CompressionParams{
		Mode:       ModeBulk,
		InputRoot:  root,
		OutputRoot: settings.OutputRoot,
		Sources:    sources,
	})
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	for i, r := range results {
		if r.InputPath != sources[i] {
			t.Fatalf("result %d = %s, want %s", i, r.InputPath, sources[i])
		}
	}
}

func TestCompressStampsJPEGDerivativesOnly(t *testing.T) {
	root := t.TempDir()
	jpg := writeJPEG(t, root, "a.jpg", 20, 20)
	pngSrc := writePNG(t, root, "b.png", 20, 20)
	settings := testSettings(root)

	stamper := &recordingStamper{}
	comp := NewDefaultCompressor(settings, encoder.NewStd(), quietLogger(), nil, WithStamper(stamper))
	if _, err := comp.Compress(context.Background(), CompressionParams{
		Mode:       ModeBulk,
		InputRoot:  root,
		OutputRoot: settings.OutputRoot,
		Sources:    []string{jpg, pngSrc},
	}); err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if got := stamper.calls.Load(); got != 1 {
		t.Fatalf("stamp calls = %d, want 1", got)
	}
}

func TestCompressRejectsSourceOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := writePNG(t, t.TempDir(), "x.png", 8, 8)
	settings := testSettings(root)

	results, err := NewDefaultCompressor(settings, encoder.NewStd(), quietLogger(), nil).Compress(context.Background(), CompressionParams{
		Mode:       ModeBulk,
		InputRoot:  root,
		OutputRoot: filepath.Join(root, "optimized"),
		Sources:    []string{outside},
	})
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if len(results) != 1 || results[0].Error == nil {
		t.Fatalf("expected a per-file error, got %+v", results)
	}
}
