package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Quality.JPEG != 80 || cfg.Quality.PNG != 80 || cfg.Quality.PNGCompression != 9 ||
		cfg.Quality.WebP != 75 || cfg.Quality.AVIF != 75 {
		t.Fatalf("unexpected default quality: %+v", cfg.Quality)
	}
	if !reflect.DeepEqual(cfg.Resolutions, []int{1920, 1280, 960, 640, 480, 320}) {
		t.Fatalf("Resolutions = %v", cfg.Resolutions)
	}
	if cfg.Modes.Bulk.AVIF || cfg.Modes.Bulk.Responsive {
		t.Fatalf("bulk mode should default to WebP plus original only: %+v", cfg.Modes.Bulk)
	}
	if !cfg.Modes.OnDemand.AVIF || !cfg.Modes.OnDemand.Responsive {
		t.Fatalf("on-demand mode should default to the full set: %+v", cfg.Modes.OnDemand)
	}
	if cfg.Performance.Workers <= 0 {
		t.Fatalf("Workers = %d", cfg.Performance.Workers)
	}
}

func TestLoadConfigFileAndNormalization(t *testing.T) {
	path := writeConfig(t, `
input_root: /srv/site/public
output_dir: derived
supported_extensions: [JPG, ".PNG", jpg]
quality:
  jpeg: 150
  png_compression: 12
resolutions: [320, 1280, 640, 1280]
logging:
  level: DEBUG
  format: text
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if !reflect.DeepEqual(cfg.SupportedExtensions, []string{".jpg", ".png"}) {
		t.Fatalf("SupportedExtensions = %v", cfg.SupportedExtensions)
	}
	if cfg.Quality.JPEG != 100 || cfg.Quality.PNGCompression != 9 {
		t.Fatalf("quality not clamped: %+v", cfg.Quality)
	}
	if !reflect.DeepEqual(cfg.Resolutions, []int{1280, 640, 320}) {
		t.Fatalf("Resolutions = %v", cfg.Resolutions)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Level = %q", cfg.Logging.Level)
	}
	if got := cfg.GetOutputRoot(); got != filepath.Join("/srv/site/public", "derived") {
		t.Fatalf("GetOutputRoot() = %q", got)
	}
}

func TestLoadConfigShorterListsReplaceDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
supported_extensions: [png]
resolutions: [1280, 640]
`))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.Resolutions, []int{1280, 640}) {
		t.Fatalf("Resolutions = %v, want [1280 640]", cfg.Resolutions)
	}
	if !reflect.DeepEqual(cfg.SupportedExtensions, []string{".png"}) {
		t.Fatalf("SupportedExtensions = %v, want [.png]", cfg.SupportedExtensions)
	}
	if cfg.Quality.WebP != 75 || !cfg.Run.Lock || cfg.Publish.Prefix != "optimized" {
		t.Fatalf("defaults lost: quality=%+v lock=%v prefix=%q", cfg.Quality, cfg.Run.Lock, cfg.Publish.Prefix)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("IMAGE_OPTIMIZER_QUALITY_WEBP", "55")
	t.Setenv("IMAGE_OPTIMIZER_PERFORMANCE_WORKERS", "3")

	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Quality.WebP != 55 || cfg.Performance.Workers != 3 {
		t.Fatalf("env overrides not applied: webp=%d workers=%d", cfg.Quality.WebP, cfg.Performance.Workers)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"exporter", func(c *Config) { c.Tracing.Exporter = "zipkin" }},
		{"width", func(c *Config) { c.Resolutions = []int{640, 0} }},
		{"no extensions", func(c *Config) { c.SupportedExtensions = nil }},
		{"no root", func(c *Config) { c.InputRoot = " " }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestAbsoluteOutputDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InputRoot = "/a/public"
	cfg.OutputDir = "/b/out"
	if got := cfg.GetOutputRoot(); got != "/b/out" {
		t.Fatalf("GetOutputRoot() = %q", got)
	}
}

func TestSettingsCopiesConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	s := cfg.Settings()
	cfg.Resolutions[0] = 1

	if s.Ladder[0] != 1920 {
		t.Fatalf("Settings shares the ladder slice with Config")
	}
	if !s.OnDemand.AVIF || s.Bulk.AVIF {
		t.Fatalf("mode options = %+v / %+v", s.Bulk, s.OnDemand)
	}
	if s.Quality.AVIF != 75 {
		t.Fatalf("Quality.AVIF = %d", s.Quality.AVIF)
	}
}
