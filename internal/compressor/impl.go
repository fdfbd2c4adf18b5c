package compressor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"image-optimizer-go/internal/encoder"
	"image-optimizer-go/internal/extractor"
	"image-optimizer-go/internal/metrics"
	"image-optimizer-go/internal/paths"
	"image-optimizer-go/internal/statistics"
	"image-optimizer-go/internal/telemetry"
)

// DefaultCompressor decodes each source once and renders its derivatives
// sequentially, running sources in a bounded pool.
type DefaultCompressor struct {
	settings    Settings
	transformer encoder.Transformer
	logger      *logrus.Logger
	stats       *statistics.Statistics
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	stamper     extractor.Stamper
}

// Option customises a DefaultCompressor.
type Option func(*DefaultCompressor)

// WithMetrics records per-source and per-variant metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *DefaultCompressor) { c.metrics = m }
}

// WithTracer emits optimizer.source and optimizer.variant spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *DefaultCompressor) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithStamper stamps provenance metadata on JPEG derivatives.
func WithStamper(s extractor.Stamper) Option {
	return func(c *DefaultCompressor) { c.stamper = s }
}

// NewDefaultCompressor creates a new DefaultCompressor instance.
func NewDefaultCompressor(settings Settings, transformer encoder.Transformer, logger *logrus.Logger, stats *statistics.Statistics, opts ...Option) *DefaultCompressor {
	if stats == nil {
		stats = statistics.NewStatistics()
	}
	c := &DefaultCompressor{
		settings:    settings,
		transformer: transformer,
		logger:      logger,
		stats:       stats,
		tracer:      noop.NewTracerProvider().Tracer(telemetry.TracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compress processes params.Sources with at most Settings.Workers running at
// once. Results keep input order; sources never started because ctx ended
// are left out.
func (c *DefaultCompressor) Compress(ctx context.Context, params CompressionParams) ([]CompressionResult, error) {
	if len(params.Sources) == 0 {
		return nil, nil
	}

	workers := c.settings.Workers
	if workers <= 0 {
		workers = 1
	}

	results := make([]CompressionResult, len(params.Sources))
	started := make([]bool, len(params.Sources))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, source := range params.Sources {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			started[i] = true
			results[i] = c.compressOne(ctx, params, source)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]CompressionResult, 0, len(results))
	for i, r := range results {
		if started[i] {
			out = append(out, r)
		}
	}
	return out, ctx.Err()
}

// compressOne produces every derivative of a single source.
func (c *DefaultCompressor) compressOne(ctx context.Context, params CompressionParams, inputPath string) CompressionResult {
	res := CompressionResult{
		InputPath: inputPath,
		Mode:      params.Mode,
		StartedAt: time.Now(),
	}
	res.RelPath = relOrSelf(params.InputRoot, inputPath)

	// A source that has started runs to completion even if the run is
	// cancelled; only unstarted sources are dropped.
	ctx, span := c.tracer.Start(context.WithoutCancel(ctx), "optimizer.source", trace.WithAttributes(
		telemetry.PathAttr(res.RelPath),
		attribute.String("optimizer.mode", string(params.Mode)),
	))
	defer span.End()

	fields := logrus.Fields{
		"file":      res.RelPath,
		"operation": "optimize",
	}
	if params.RunID != "" {
		fields["run_id"] = params.RunID
		fields["mode"] = string(params.Mode)
	}
	entry := c.logger.WithFields(fields)

	fail := func(op string, err error) CompressionResult {
		res.Error = fmt.Errorf("%s: %w", op, err)
		res.FinishedAt = time.Now()
		telemetry.RecordError(span, res.Error)
		c.stats.IncrementSourcesProcessed()
		c.stats.IncrementSourcesFailed()
		c.stats.AddError(res.RelPath, op, err.Error())
		c.metrics.ObserveSource(string(params.Mode), "error")
		entry.WithError(err).Errorf("❌ Error optimizing %s: %v", res.RelPath, res.Error)
		return res
	}

	base, err := paths.MapToOutput(inputPath, params.InputRoot, params.OutputRoot)
	if err != nil {
		return fail("map", err)
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fail("read", err)
	}
	res.OriginalSize = int64(len(data))
	c.stats.AddBytesRead(res.OriginalSize)

	img, err := c.transformer.Decode(ctx, data)
	if err != nil {
		return fail("decode", err)
	}
	defer img.Close()

	res.Width, res.Height = img.Width(), img.Height()
	span.SetAttributes(attribute.Int("image.width", res.Width), attribute.Int("image.height", res.Height))

	if err := c.ensureDir(filepath.Dir(base)); err != nil {
		return fail("mkdir", err)
	}

	variants, skipped := PlanVariants(base, res.Width, c.settings.Options(params.Mode), c.settings.Ladder)
	res.SkippedWidths = skipped
	c.stats.AddVariantsSkipped(len(skipped))
	if len(skipped) > 0 {
		entry.WithField("widths", skipped).Debug("Skipping ladder widths not smaller than the source")
	}

	for _, v := range variants {
		vr := c.renderVariant(ctx, entry, img, v)
		res.Variants = append(res.Variants, vr)
		if vr.Error != nil {
			c.stats.AddError(res.RelPath, "encode "+string(v.Format), vr.Error.Error())
			entry.WithFields(logrus.Fields{
				"target": relOrSelf(params.OutputRoot, v.Path),
				"format": v.Format,
				"width":  v.Width,
			}).WithError(vr.Error).Error("Variant failed")
		}
	}

	res.FinishedAt = time.Now()
	c.stats.IncrementSourcesProcessed()
	if res.Success() {
		c.stats.IncrementSourcesOptimized()
		c.metrics.ObserveSource(string(params.Mode), "ok")
		entry.WithField("variants", len(res.Variants)).Infof("✅ Optimized: %s", res.RelPath)
	} else {
		c.stats.IncrementSourcesPartial()
		c.metrics.ObserveSource(string(params.Mode), "partial")
		err := fmt.Errorf("%d of %d variants failed", res.FailedVariants(), len(res.Variants))
		telemetry.RecordError(span, err)
		entry.Errorf("❌ Error optimizing %s: %v", res.RelPath, err)
	}
	return res
}

// renderVariant resizes, encodes and writes one derivative.
func (c *DefaultCompressor) renderVariant(ctx context.Context, entry *logrus.Entry, img encoder.Image, v Variant) VariantResult {
	start := time.Now()
	vr := VariantResult{Format: v.Format, Width: v.Width, OutputPath: v.Path}

	ctx, span := c.tracer.Start(ctx, "optimizer.variant", trace.WithAttributes(
		telemetry.PathAttr(v.Path),
		attribute.String("image.format", string(v.Format)),
		attribute.Int("image.target_width", v.Width),
	))
	defer span.End()

	data, err := img.Render(ctx, v.Width, v.Format, c.settings.Quality)
	if err == nil {
		err = writeFileAtomic(v.Path, data)
	}
	vr.Duration = time.Since(start)
	if err != nil {
		vr.Error = err
		telemetry.RecordError(span, err)
		c.stats.IncrementVariantsFailed()
		c.metrics.ObserveVariant(string(v.Format), "error", vr.Duration, 0)
		return vr
	}

	vr.Bytes = int64(len(data))
	c.stats.IncrementVariantsWritten(string(v.Format))
	c.stats.AddBytesWritten(vr.Bytes)
	c.metrics.ObserveVariant(string(v.Format), "ok", vr.Duration, vr.Bytes)

	if c.stamper != nil && v.Format == encoder.FormatJPEG {
		if err := c.stamper.Stamp(v.Path); err != nil {
			entry.WithField("target", v.Path).WithError(err).Warn("Could not stamp derivative metadata")
		}
	}
	return vr
}

// ensureDir creates dir and its parents, counting it when it was missing.
func (c *DefaultCompressor) ensureDir(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	c.stats.IncrementDirectoriesCreated()
	return nil
}

// writeFileAtomic writes data to path through a temporary sibling so a
// crash never leaves a truncated file under the final name.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write tmp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func relOrSelf(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "" {
		return path
	}
	return filepath.ToSlash(rel)
}
