package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"image-optimizer-go/internal/discovery"
)

// execute runs the root command with fresh flag values.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, inputRoot, outputDir = "", "", ""
	workers, width, natural = 0, 0, 0
	verbose, quiet, ensureBkt = false, false, false
	role = "gallery"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writePNG(t *testing.T, root, rel string, w, h int) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: 90, A: 255})
		}
	}
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return p
}

func TestOnDemandWithoutPaths(t *testing.T) {
	out, err := execute(t, "on-demand", "--root", t.TempDir())
	if !errors.Is(err, discovery.ErrNoPaths) {
		t.Fatalf("error = %v, want ErrNoPaths", err)
	}
	if !strings.Contains(out, "Usage:") {
		t.Fatalf("usage not printed: %q", out)
	}
}

func TestBulkCommand(t *testing.T) {
	root := t.TempDir()
	writePNG(t, root, "img/logo.png", 24, 24)

	out, err := execute(t, "bulk", "--root", root, "--workers", "1")
	if err != nil {
		t.Fatalf("bulk: %v\n%s", err, out)
	}
	for _, rel := range []string{"img/logo.png", "img/logo.webp"} {
		if _, err := os.Stat(filepath.Join(root, "optimized", filepath.FromSlash(rel))); err != nil {
			t.Fatalf("missing %s: %v", rel, err)
		}
	}
	if !strings.Contains(out, "Image Optimizer Summary") {
		t.Fatalf("summary not printed:\n%s", out)
	}
}

func TestBulkCommandMissingRoot(t *testing.T) {
	_, err := execute(t, "bulk", "--root", filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, discovery.ErrRootNotFound) {
		t.Fatalf("error = %v, want ErrRootNotFound", err)
	}
	if !strings.Contains(err.Error(), "while ensuring_output_dir") {
		t.Fatalf("error does not name the failed stage: %v", err)
	}
}

func TestBulkCommandListsFailedSources(t *testing.T) {
	root := t.TempDir()
	writePNG(t, root, "ok.png", 16, 16)
	if err := os.WriteFile(filepath.Join(root, "broken.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := execute(t, "bulk", "--root", root, "--workers", "1")
	if err != nil {
		t.Fatalf("bulk: %v\n%s", err, out)
	}
	for _, want := range []string{"Failed sources (1):", "\n  broken.png: decode:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "ok.png:") {
		t.Fatalf("successful source listed as failed:\n%s", out)
	}
}

func TestScanCommand(t *testing.T) {
	root := t.TempDir()
	writePNG(t, root, "a.png", 8, 8)
	writePNG(t, root, "optimized/a.png", 8, 8)

	out, err := execute(t, "scan", "--root", root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out, "a.png") || strings.Contains(out, "optimized/a.png") {
		t.Fatalf("unexpected scan output:\n%s", out)
	}
	if !strings.Contains(out, "1 images") {
		t.Fatalf("count missing:\n%s", out)
	}
}

func TestInspectCommand(t *testing.T) {
	root := t.TempDir()
	src := writePNG(t, root, "hero.png", 40, 20)

	out, err := execute(t, "inspect", "--root", root, src)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"Format:      png", "Dimensions:  40x20", "bulk (2 derivatives)", "hero.avif"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestResolveCommand(t *testing.T) {
	out, err := execute(t, "resolve", "/images/hero.jpg", "--width", "640", "--natural-width", "1000", "--role", "hero")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, want := range []string{
		"src:    /optimized/images/hero_640.jpg",
		"webp:   /optimized/images/hero_640.webp",
		"/optimized/images/hero_320.webp 320w",
		"/optimized/images/hero.webp 1000w",
		"sizes:  (max-width: 640px) 100vw, 100vw",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPublishRequiresBucket(t *testing.T) {
	_, err := execute(t, "publish", "--root", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "publish.bucket") {
		t.Fatalf("error = %v, want missing bucket", err)
	}
}
