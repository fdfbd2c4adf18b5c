package compressor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"image-optimizer-go/internal/discovery"
	"image-optimizer-go/internal/logger"
	"image-optimizer-go/internal/metrics"
	"image-optimizer-go/internal/paths"
	"image-optimizer-go/internal/statistics"
	"image-optimizer-go/internal/telemetry"
)

// ErrLocked is returned when another run holds the output directory lock.
var ErrLocked = errors.New("output directory is locked by another run")

// LockFileName is the advisory lock file created inside the output root.
const LockFileName = ".image-optimizer.lock"

// State is a stage of a run.
type State string

const (
	StateIdle              State = "idle"
	StateEnsuringOutputDir State = "ensuring_output_dir"
	StateDiscovering       State = "discovering"
	StateValidating        State = "validating"
	StateProcessing        State = "processing_each"
	StateDone              State = "done"
)

// Report summarises a finished run.
type Report struct {
	RunID      string
	Mode       Mode
	InputRoot  string
	OutputRoot string
	Results    []CompressionResult
	Rejections []discovery.Rejection
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall time of the run.
func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed returns the results of sources with at least one failure.
func (r Report) Failed() []CompressionResult {
	var out []CompressionResult
	for _, res := range r.Results {
		if !res.Success() {
			out = append(out, res)
		}
	}
	return out
}

// Runner drives one run through its states: ensure the output directory,
// select sources, process them, summarise.
type Runner struct {
	settings   Settings
	compressor Compressor
	logger     *logrus.Logger
	stats      *statistics.Statistics
	metrics    *metrics.Metrics
	tracer     trace.Tracer

	mu    sync.Mutex
	state State
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithRunMetrics records the run duration and timestamp.
func WithRunMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithRunTracer emits the optimizer.run span.
func WithRunTracer(t trace.Tracer) RunnerOption {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// NewRunner returns a Runner in the idle state.
func NewRunner(settings Settings, comp Compressor, log *logrus.Logger, stats *statistics.Statistics, opts ...RunnerOption) *Runner {
	if stats == nil {
		stats = statistics.NewStatistics()
	}
	r := &Runner{
		settings:   settings,
		compressor: comp,
		logger:     log,
		stats:      stats,
		tracer:     noop.NewTracerProvider().Tracer(telemetry.TracerName),
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current stage. After a failed run it is the stage
// that failed.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// RunBulk discovers every image under the asset root and processes it.
func (r *Runner) RunBulk(ctx context.Context) (Report, error) {
	return r.run(ctx, ModeBulk, func(inputRoot, outputRoot string) ([]string, []discovery.Rejection, error) {
		r.setState(StateDiscovering)
		files, err := discovery.Discover(discovery.Options{
			Root:        inputRoot,
			OutputRoot:  outputRoot,
			Extensions:  r.settings.Extensions,
			Logger:      r.logger,
			OnDirectory: func(string) { r.stats.IncrementDirectoriesScanned() },
		})
		return files, nil, err
	})
}

// RunOnDemand processes relPaths, given relative to the asset root. An empty
// list fails with discovery.ErrNoPaths before anything touches the disk.
func (r *Runner) RunOnDemand(ctx context.Context, relPaths []string) (Report, error) {
	if len(relPaths) == 0 {
		return Report{Mode: ModeOnDemand}, discovery.ErrNoPaths
	}
	return r.run(ctx, ModeOnDemand, func(inputRoot, outputRoot string) ([]string, []discovery.Rejection, error) {
		r.setState(StateValidating)
		sel, err := discovery.Select(inputRoot, outputRoot, relPaths)
		if err != nil {
			return nil, nil, err
		}
		for _, rej := range sel.Rejections {
			r.stats.IncrementSourcesRejected()
			r.stats.AddError(rej.Path, "validate", rej.Reason)
			logger.WithFileOperation(r.logger, rej.Path, "validate").Warnf("Skipping %s: %s", rej.Path, rej.Reason)
		}
		return sel.Accepted, sel.Rejections, nil
	})
}

type selectFunc func(inputRoot, outputRoot string) ([]string, []discovery.Rejection, error)

func (r *Runner) run(ctx context.Context, mode Mode, selectSources selectFunc) (Report, error) {
	report := Report{
		RunID:     uuid.NewString(),
		Mode:      mode,
		StartedAt: time.Now(),
	}
	log := logger.WithRun(r.logger, report.RunID, string(mode))

	ctx, span := r.tracer.Start(ctx, "optimizer.run", trace.WithAttributes(
		attribute.String("optimizer.run_id", report.RunID),
		attribute.String("optimizer.mode", string(mode)),
	))
	defer span.End()

	fail := func(err error) (Report, error) {
		report.FinishedAt = time.Now()
		telemetry.RecordError(span, err)
		return report, err
	}

	r.setState(StateEnsuringOutputDir)
	inputRoot, outputRoot, unlock, err := r.ensureOutputDir()
	if err != nil {
		return fail(err)
	}
	defer unlock()
	report.InputRoot, report.OutputRoot = inputRoot, outputRoot

	sources, rejections, err := selectSources(inputRoot, outputRoot)
	if err != nil {
		return fail(err)
	}
	report.Rejections = rejections
	r.stats.AddSourcesFound(len(sources))
	span.SetAttributes(attribute.Int("optimizer.sources", len(sources)))
	log.WithField("sources", len(sources)).Infof("Found %d images to optimize", len(sources))

	r.setState(StateProcessing)
	results, err := r.compressor.Compress(ctx, CompressionParams{
		RunID:      report.RunID,
		Mode:       mode,
		InputRoot:  inputRoot,
		OutputRoot: outputRoot,
		Sources:    sources,
	})
	report.Results = results
	report.FinishedAt = time.Now()
	r.stats.Finalize()
	r.metrics.ObserveRun(report.Duration(), report.FinishedAt)

	if err != nil {
		log.WithError(err).Warnf("Run interrupted after %d of %d images", len(results), len(sources))
		return fail(fmt.Errorf("run interrupted: %w", err))
	}

	log.WithFields(logrus.Fields{
		"processed": len(results),
		"failures":  r.stats.Failures(),
		"duration":  report.Duration().String(),
	}).Info("✨ Image optimization complete!")
	r.setState(StateDone)
	return report, nil
}

// ensureOutputDir verifies the asset root, creates the output root and
// takes the run lock. It returns both roots in canonical form.
func (r *Runner) ensureOutputDir() (string, string, func(), error) {
	nothing := func() {}

	inputRoot, err := discovery.CheckRoot(r.settings.InputRoot)
	if err != nil {
		return "", "", nothing, err
	}

	info, err := os.Stat(r.settings.OutputRoot)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(r.settings.OutputRoot, 0755); err != nil {
			return "", "", nothing, fmt.Errorf("create output directory: %w", err)
		}
		r.stats.IncrementDirectoriesCreated()
	} else if err != nil {
		return "", "", nothing, fmt.Errorf("stat output directory: %w", err)
	} else if !info.IsDir() {
		return "", "", nothing, fmt.Errorf("output path %s is not a directory", r.settings.OutputRoot)
	}

	outputRoot, err := paths.Canonical(r.settings.OutputRoot)
	if err != nil {
		return "", "", nothing, err
	}

	if !r.settings.Lock {
		return inputRoot, outputRoot, nothing, nil
	}

	fl := flock.New(filepath.Join(outputRoot, LockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return "", "", nothing, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return "", "", nothing, fmt.Errorf("%w: %s", ErrLocked, fl.Path())
	}
	return inputRoot, outputRoot, func() { _ = fl.Unlock() }, nil
}
