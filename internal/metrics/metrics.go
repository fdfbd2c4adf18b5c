// Package metrics records run-level Prometheus metrics and flushes them once
// the run ends, either to a node-exporter textfile or to a Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry        *prometheus.Registry
	sourcesTotal    *prometheus.CounterVec
	variantsTotal   *prometheus.CounterVec
	variantDuration *prometheus.HistogramVec
	bytesWritten    prometheus.Counter
	runDuration     prometheus.Gauge
	lastRun         prometheus.Gauge
}

// New creates the metric set on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		sourcesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "image_optimizer_sources_total",
			Help: "Source images handled by mode and final status.",
		}, []string{"mode", "status"}),
		variantsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "image_optimizer_variants_total",
			Help: "Derivatives attempted by output format and status.",
		}, []string{"format", "status"}),
		variantDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "image_optimizer_variant_duration_seconds",
			Help:    "Time to resize, encode and write one derivative.",
			Buckets: prometheus.DefBuckets,
		}, []string{"format"}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "image_optimizer_bytes_written_total",
			Help: "Total bytes of derivatives written.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "image_optimizer_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "image_optimizer_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
	}

	registry.MustRegister(
		m.sourcesTotal,
		m.variantsTotal,
		m.variantDuration,
		m.bytesWritten,
		m.runDuration,
		m.lastRun,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveSource counts one source with status "ok", "partial" or "error".
func (m *Metrics) ObserveSource(mode, status string) {
	if m == nil {
		return
	}
	m.sourcesTotal.WithLabelValues(mode, status).Inc()
}

// ObserveVariant records one derivative attempt.
func (m *Metrics) ObserveVariant(format, status string, d time.Duration, bytes int64) {
	if m == nil {
		return
	}
	m.variantsTotal.WithLabelValues(format, status).Inc()
	m.variantDuration.WithLabelValues(format).Observe(d.Seconds())
	if bytes > 0 {
		m.bytesWritten.Add(float64(bytes))
	}
}

// ObserveRun records the run wall time and completion timestamp.
func (m *Metrics) ObserveRun(d time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.runDuration.Set(d.Seconds())
	m.lastRun.Set(float64(finished.Unix()))
}

// WriteTextfile writes the registry in text exposition format for the
// node-exporter textfile collector. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Push sends the registry to a Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
