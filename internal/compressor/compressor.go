package compressor

import (
	"context"
	"time"

	"image-optimizer-go/internal/encoder"
)

// Mode selects the entry point of a run.
type Mode string

const (
	ModeBulk     Mode = "bulk"
	ModeOnDemand Mode = "on-demand"
)

// ModeOptions toggles the optional derivatives of a mode. WebP and the
// original-format copy at full size are always produced.
type ModeOptions struct {
	AVIF       bool
	Responsive bool
}

// Settings is the immutable configuration of the pipeline.
type Settings struct {
	InputRoot  string
	OutputRoot string
	Extensions []string
	Quality    encoder.Quality
	// Ladder holds resize widths in descending order.
	Ladder   []int
	Bulk     ModeOptions
	OnDemand ModeOptions
	Workers  int
	Lock     bool
}

// Options returns the derivative set for mode.
func (s Settings) Options(mode Mode) ModeOptions {
	if mode == ModeOnDemand {
		return s.OnDemand
	}
	return s.Bulk
}

// CompressionParams defines one batch handed to a Compressor. Roots must be
// canonical and every source must lie under InputRoot.
type CompressionParams struct {
	// RunID tags every log line of the batch; empty outside a Runner.
	RunID      string
	Mode       Mode
	InputRoot  string
	OutputRoot string
	Sources    []string
}

// VariantResult describes one derivative of a source.
type VariantResult struct {
	Format     encoder.Format
	Width      int
	OutputPath string
	Bytes      int64
	Duration   time.Duration
	Error      error
}

// CompressionResult describes the outcome of processing a single source.
type CompressionResult struct {
	InputPath    string
	RelPath      string
	Mode         Mode
	Width        int
	Height       int
	OriginalSize int64
	Variants     []VariantResult
	// SkippedWidths lists ladder widths not produced to avoid upscaling.
	SkippedWidths []int
	StartedAt     time.Time
	FinishedAt    time.Time
	// Error is set when the source could not be read or decoded at all.
	Error error
}

// Success reports whether the source and all of its variants succeeded.
func (r CompressionResult) Success() bool {
	if r.Error != nil {
		return false
	}
	for _, v := range r.Variants {
		if v.Error != nil {
			return false
		}
	}
	return true
}

// FailedVariants returns the number of variants that failed.
func (r CompressionResult) FailedVariants() int {
	n := 0
	for _, v := range r.Variants {
		if v.Error != nil {
			n++
		}
	}
	return n
}

// Compressor defines the interface for producing image derivatives.
type Compressor interface {
	// Compress processes every source in params and returns one result per
	// source that was started. Per-file failures live in the results; the
	// error is reserved for cancellation.
	Compress(ctx context.Context, params CompressionParams) ([]CompressionResult, error)
}
