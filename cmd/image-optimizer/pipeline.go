package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"image-optimizer-go/internal/compressor"
	"image-optimizer-go/internal/config"
	"image-optimizer-go/internal/encoder"
	"image-optimizer-go/internal/extractor"
	"image-optimizer-go/internal/logger"
	"image-optimizer-go/internal/metrics"
	"image-optimizer-go/internal/statistics"
	"image-optimizer-go/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// pipeline owns everything a run needs and the order they are torn down in.
type pipeline struct {
	cfg     *config.Config
	log     *logrus.Logger
	stats   *statistics.Statistics
	metrics *metrics.Metrics
	stamper extractor.Stamper
	runner  *compressor.Runner

	shutdownTracing func(context.Context) error
}

func newPipeline(ctx context.Context, cfg *config.Config, out io.Writer) (*pipeline, error) {
	log := setupLogger(cfg, out)

	if err := encoder.Startup(); err != nil {
		return nil, fmt.Errorf("start image backend: %w", err)
	}
	transformer, err := encoder.New()
	if err != nil {
		encoder.Shutdown()
		return nil, fmt.Errorf("create image backend: %w", err)
	}
	log.WithField("backend", transformer.Name()).Debug("Image backend ready")

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, log)
	if err != nil {
		encoder.Shutdown()
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	p := &pipeline{
		cfg:             cfg,
		log:             log,
		stats:           statistics.NewStatistics(),
		shutdownTracing: shutdownTracing,
	}
	if cfg.MetricsEnabled() {
		p.metrics = metrics.New()
	}

	opts := []compressor.Option{
		compressor.WithMetrics(p.metrics),
		compressor.WithTracer(telemetry.Tracer()),
	}
	if s := extractor.NewExifToolStamper(cfg.Metadata.StampSoftware, log); s != nil {
		p.stamper = s
		opts = append(opts, compressor.WithStamper(s))
	}

	settings := cfg.Settings()
	comp := compressor.NewDefaultCompressor(settings, transformer, log, p.stats, opts...)
	p.runner = compressor.NewRunner(settings, comp, log, p.stats,
		compressor.WithRunMetrics(p.metrics),
		compressor.WithRunTracer(telemetry.Tracer()),
	)
	return p, nil
}

// finish flushes end-of-run metrics. Sink failures are logged only.
func (p *pipeline) finish(ctx context.Context) {
	if p.metrics == nil {
		return
	}
	if err := p.metrics.WriteTextfile(p.cfg.Metrics.TextfilePath); err != nil {
		p.log.WithError(err).Warn("Failed to write metrics textfile")
	}
	// The run context may already be cancelled; the push still goes out.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := p.metrics.Push(pushCtx, p.cfg.Metrics.PushgatewayURL, p.cfg.Metrics.Job); err != nil {
		p.log.WithError(err).Warn("Failed to push metrics")
	}
}

func (p *pipeline) Close() {
	if p.stamper != nil {
		if err := p.stamper.Close(); err != nil {
			p.log.WithError(err).Debug("exiftool shutdown")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := p.shutdownTracing(ctx); err != nil {
		p.log.WithError(err).Warn("Failed to flush traces")
	}

	encoder.Shutdown()
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config, out io.Writer) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
		Output:     out,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetOutput(out)
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}
