package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"image-optimizer-go/internal/compressor"
	"image-optimizer-go/internal/encoder"
)

// Config represents the main configuration structure
type Config struct {
	InputRoot           string            `mapstructure:"input_root"`
	OutputDir           string            `mapstructure:"output_dir"`
	SupportedExtensions []string          `mapstructure:"supported_extensions"`
	Quality             QualityConfig     `mapstructure:"quality"`
	Resolutions         []int             `mapstructure:"resolutions"`
	Modes               ModesConfig       `mapstructure:"modes"`
	Performance         PerformanceConfig `mapstructure:"performance"`
	Run                 RunConfig         `mapstructure:"run"`
	Metadata            MetadataConfig    `mapstructure:"metadata"`
	Logging             LoggingConfig     `mapstructure:"logging"`
	Metrics             MetricsConfig     `mapstructure:"metrics"`
	Tracing             TracingConfig     `mapstructure:"tracing"`
	Publish             PublishConfig     `mapstructure:"publish"`
}

// QualityConfig contains per-format encoder settings
type QualityConfig struct {
	JPEG           int `mapstructure:"jpeg"`
	PNG            int `mapstructure:"png"`
	PNGCompression int `mapstructure:"png_compression"`
	WebP           int `mapstructure:"webp"`
	AVIF           int `mapstructure:"avif"`
}

// ModesConfig holds the derivative set of each run mode
type ModesConfig struct {
	Bulk     ModeConfig `mapstructure:"bulk"`
	OnDemand ModeConfig `mapstructure:"on_demand"`
}

// ModeConfig toggles the optional derivatives of one mode
type ModeConfig struct {
	AVIF       bool `mapstructure:"avif"`
	Responsive bool `mapstructure:"responsive"`
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	Workers int `mapstructure:"workers"`
}

// RunConfig contains run coordination settings
type RunConfig struct {
	Lock bool `mapstructure:"lock"`
}

// MetadataConfig controls provenance stamping of derivatives
type MetadataConfig struct {
	StampSoftware string `mapstructure:"stamp_software"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig contains the end-of-run metrics sinks
type MetricsConfig struct {
	TextfilePath   string `mapstructure:"textfile_path"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// TracingConfig contains OpenTelemetry exporter settings
type TracingConfig struct {
	Exporter     string `mapstructure:"exporter"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
}

// PublishConfig contains the S3-compatible upload target
type PublishConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
	Workers   int    `mapstructure:"workers"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	q := encoder.DefaultQuality()
	return &Config{
		InputRoot:           "./public",
		OutputDir:           "optimized",
		SupportedExtensions: []string{".jpg", ".jpeg", ".png", ".webp"},
		Quality: QualityConfig{
			JPEG:           q.JPEG,
			PNG:            q.PNG,
			PNGCompression: q.PNGCompression,
			WebP:           q.WebP,
			AVIF:           q.AVIF,
		},
		Resolutions: []int{1920, 1280, 960, 640, 480, 320},
		Modes: ModesConfig{
			Bulk:     ModeConfig{AVIF: false, Responsive: false},
			OnDemand: ModeConfig{AVIF: true, Responsive: true},
		},
		Performance: PerformanceConfig{
			Workers: runtime.NumCPU(),
		},
		Run: RunConfig{
			Lock: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "auto",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Job: "image_optimizer",
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			ServiceName: "image-optimizer",
		},
		Publish: PublishConfig{
			Prefix:  "optimized",
			UseSSL:  true,
			Workers: 4,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-optimizer")
		v.AddConfigPath("/etc/image-optimizer")
	}

	// Enable environment variable support
	v.SetEnvPrefix("IMAGE_OPTIMIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only applies to keys viper already knows about.
	setDefaults(v, DefaultConfig())

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	// Defaults live in viper. Decoding over a populated struct would merge
	// lists element-wise and keep stale default entries.
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate and normalize config
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("input_root", c.InputRoot)
	v.SetDefault("output_dir", c.OutputDir)
	v.SetDefault("supported_extensions", c.SupportedExtensions)
	v.SetDefault("quality.jpeg", c.Quality.JPEG)
	v.SetDefault("quality.png", c.Quality.PNG)
	v.SetDefault("quality.png_compression", c.Quality.PNGCompression)
	v.SetDefault("quality.webp", c.Quality.WebP)
	v.SetDefault("quality.avif", c.Quality.AVIF)
	v.SetDefault("resolutions", c.Resolutions)
	v.SetDefault("modes.bulk.avif", c.Modes.Bulk.AVIF)
	v.SetDefault("modes.bulk.responsive", c.Modes.Bulk.Responsive)
	v.SetDefault("modes.on_demand.avif", c.Modes.OnDemand.AVIF)
	v.SetDefault("modes.on_demand.responsive", c.Modes.OnDemand.Responsive)
	v.SetDefault("performance.workers", c.Performance.Workers)
	v.SetDefault("run.lock", c.Run.Lock)
	v.SetDefault("metadata.stamp_software", c.Metadata.StampSoftware)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
	v.SetDefault("metrics.textfile_path", c.Metrics.TextfilePath)
	v.SetDefault("metrics.pushgateway_url", c.Metrics.PushgatewayURL)
	v.SetDefault("metrics.job", c.Metrics.Job)
	v.SetDefault("tracing.exporter", c.Tracing.Exporter)
	v.SetDefault("tracing.otlp_endpoint", c.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.otlp_insecure", c.Tracing.OTLPInsecure)
	v.SetDefault("tracing.service_name", c.Tracing.ServiceName)
	v.SetDefault("publish.endpoint", c.Publish.Endpoint)
	v.SetDefault("publish.access_key", c.Publish.AccessKey)
	v.SetDefault("publish.secret_key", c.Publish.SecretKey)
	v.SetDefault("publish.bucket", c.Publish.Bucket)
	v.SetDefault("publish.use_ssl", c.Publish.UseSSL)
	v.SetDefault("publish.prefix", c.Publish.Prefix)
	v.SetDefault("publish.workers", c.Publish.Workers)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.InputRoot) == "" {
		return fmt.Errorf("input_root is required")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output_dir is required")
	}

	// Validate extensions format
	c.SupportedExtensions = normalizeExtensions(c.SupportedExtensions)
	if len(c.SupportedExtensions) == 0 {
		return fmt.Errorf("supported_extensions must not be empty")
	}

	c.Quality.JPEG = clamp(c.Quality.JPEG, 1, 100)
	c.Quality.PNG = clamp(c.Quality.PNG, 1, 100)
	c.Quality.PNGCompression = clamp(c.Quality.PNGCompression, 0, 9)
	c.Quality.WebP = clamp(c.Quality.WebP, 1, 100)
	c.Quality.AVIF = clamp(c.Quality.AVIF, 1, 100)

	ladder, err := normalizeLadder(c.Resolutions)
	if err != nil {
		return err
	}
	c.Resolutions = ladder

	// Validate performance settings
	if c.Performance.Workers <= 0 {
		c.Performance.Workers = runtime.NumCPU()
	}
	if c.Publish.Workers <= 0 {
		c.Publish.Workers = 4
	}

	// Validate logging settings
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"auto": true, "json": true, "text": true}
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: auto, json, text)", c.Logging.Format)
	}

	validExporters := map[string]bool{"": true, "none": true, "stdout": true, "otlp": true}
	c.Tracing.Exporter = strings.ToLower(strings.TrimSpace(c.Tracing.Exporter))
	if !validExporters[c.Tracing.Exporter] {
		return fmt.Errorf("invalid tracing exporter: %s (valid: none, stdout, otlp)", c.Tracing.Exporter)
	}

	return nil
}

// GetInputRoot returns the asset root with ~ and environment variables expanded
func (c *Config) GetInputRoot() string {
	return expandPath(c.InputRoot)
}

// GetOutputRoot returns the output root. A relative output_dir lives inside
// the asset root.
func (c *Config) GetOutputRoot() string {
	out := expandPath(c.OutputDir)
	if filepath.IsAbs(out) {
		return filepath.Clean(out)
	}
	return filepath.Join(c.GetInputRoot(), out)
}

// MetricsEnabled reports whether any metrics sink is configured
func (c *Config) MetricsEnabled() bool {
	return c.Metrics.TextfilePath != "" || c.Metrics.PushgatewayURL != ""
}

// Settings converts the configuration into the immutable pipeline settings.
func (c *Config) Settings() compressor.Settings {
	ladder := make([]int, len(c.Resolutions))
	copy(ladder, c.Resolutions)
	exts := make([]string, len(c.SupportedExtensions))
	copy(exts, c.SupportedExtensions)

	return compressor.Settings{
		InputRoot:  c.GetInputRoot(),
		OutputRoot: c.GetOutputRoot(),
		Extensions: exts,
		Quality: encoder.Quality{
			JPEG:           c.Quality.JPEG,
			PNG:            c.Quality.PNG,
			PNGCompression: c.Quality.PNGCompression,
			WebP:           c.Quality.WebP,
			AVIF:           c.Quality.AVIF,
		},
		Ladder: ladder,
		Bulk: compressor.ModeOptions{
			AVIF:       c.Modes.Bulk.AVIF,
			Responsive: c.Modes.Bulk.Responsive,
		},
		OnDemand: compressor.ModeOptions{
			AVIF:       c.Modes.OnDemand.AVIF,
			Responsive: c.Modes.OnDemand.Responsive,
		},
		Workers: c.Performance.Workers,
		Lock:    c.Run.Lock,
	}
}

// Helper functions

func expandPath(path string) string {
	expandedPath := os.ExpandEnv(path)
	if strings.HasPrefix(expandedPath, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			expandedPath = filepath.Join(home, expandedPath[1:])
		}
	}
	return expandedPath
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, 0, len(extensions))
	seen := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if seen[ext] {
			continue
		}
		seen[ext] = true
		normalized = append(normalized, ext)
	}
	return normalized
}

// normalizeLadder sorts widths descending and drops duplicates.
func normalizeLadder(widths []int) ([]int, error) {
	seen := make(map[int]bool, len(widths))
	out := make([]int, 0, len(widths))
	for _, w := range widths {
		if w <= 0 {
			return nil, fmt.Errorf("invalid resolution width: %d", w)
		}
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
