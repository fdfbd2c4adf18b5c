package statistics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Statistics contains all counters for one optimization run.
type Statistics struct {
	SourcesFound     int64
	SourcesProcessed int64
	SourcesOptimized int64
	// SourcesFailed counts sources that produced nothing (unreadable or
	// undecodable); SourcesPartial counts sources where only some variants
	// failed.
	SourcesFailed    int64
	SourcesPartial   int64
	SourcesRejected  int64

	VariantsWritten int64
	VariantsFailed  int64
	// VariantsSkipped counts ladder widths not produced because the source
	// is not wider than them.
	VariantsSkipped int64

	BytesRead    int64
	BytesWritten int64

	DirectoriesCreated int64
	DirectoriesScanned int64

	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
	SourcesPerSecond float64

	Errors []StatError

	FormatStats map[string]int64

	mutex sync.RWMutex
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:   time.Now(),
		FormatStats: make(map[string]int64),
		Errors:      make([]StatError, 0),
	}
}

// AddSourcesFound adds n to the count of selected sources.
func (s *Statistics) AddSourcesFound(n int) {
	atomic.AddInt64(&s.SourcesFound, int64(n))
}

// IncrementSourcesProcessed increases the count of processed sources by 1.
func (s *Statistics) IncrementSourcesProcessed() {
	atomic.AddInt64(&s.SourcesProcessed, 1)
}

// IncrementSourcesOptimized increases the count of sources whose derivatives
// were all written.
func (s *Statistics) IncrementSourcesOptimized() {
	atomic.AddInt64(&s.SourcesOptimized, 1)
}

// IncrementSourcesFailed increases the count of sources that could not be
// processed at all.
func (s *Statistics) IncrementSourcesFailed() {
	atomic.AddInt64(&s.SourcesFailed, 1)
}

// IncrementSourcesPartial increases the count of sources with at least one
// failed variant.
func (s *Statistics) IncrementSourcesPartial() {
	atomic.AddInt64(&s.SourcesPartial, 1)
}

// IncrementSourcesRejected increases the count of explicit paths rejected
// during validation.
func (s *Statistics) IncrementSourcesRejected() {
	atomic.AddInt64(&s.SourcesRejected, 1)
}

// IncrementVariantsWritten records one derivative written in format.
func (s *Statistics) IncrementVariantsWritten(format string) {
	atomic.AddInt64(&s.VariantsWritten, 1)
	s.mutex.Lock()
	s.FormatStats[format]++
	s.mutex.Unlock()
}

func (s *Statistics) IncrementVariantsFailed() {
	atomic.AddInt64(&s.VariantsFailed, 1)
}

func (s *Statistics) AddVariantsSkipped(n int) {
	atomic.AddInt64(&s.VariantsSkipped, int64(n))
}

// AddBytesRead adds the size of a source file.
func (s *Statistics) AddBytesRead(n int64) {
	atomic.AddInt64(&s.BytesRead, n)
}

// AddBytesWritten adds the size of a derivative.
func (s *Statistics) AddBytesWritten(n int64) {
	atomic.AddInt64(&s.BytesWritten, n)
}

// IncrementDirectoriesCreated increases the count of created directories by 1.
func (s *Statistics) IncrementDirectoriesCreated() {
	atomic.AddInt64(&s.DirectoriesCreated, 1)
}

// IncrementDirectoriesScanned increases the count of scanned directories by 1.
func (s *Statistics) IncrementDirectoriesScanned() {
	atomic.AddInt64(&s.DirectoriesScanned, 1)
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize calculates duration and throughput.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	processed := atomic.LoadInt64(&s.SourcesProcessed)
	if s.Duration.Seconds() > 0 {
		s.SourcesPerSecond = float64(processed) / s.Duration.Seconds()
	}
}

// Failures returns the aggregate failure count. Each failure is counted
// once: a source that produced nothing, a failed variant of an otherwise
// processed source, or a rejected path. SourcesPartial is not added since
// its variants are already in VariantsFailed.
func (s *Statistics) Failures() int64 {
	return atomic.LoadInt64(&s.SourcesFailed) +
		atomic.LoadInt64(&s.VariantsFailed) +
		atomic.LoadInt64(&s.SourcesRejected)
}

// GetSummary returns the run summary rendered as a table.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	duration := s.Duration
	perSecond := s.SourcesPerSecond
	s.mutex.RUnlock()

	rows := [][]string{
		{"Sources found", count(&s.SourcesFound)},
		{"Sources processed", count(&s.SourcesProcessed)},
		{"Sources optimized", count(&s.SourcesOptimized)},
		{"Sources failed", count(&s.SourcesFailed)},
		{"Sources with failed variants", count(&s.SourcesPartial)},
		{"Paths rejected", count(&s.SourcesRejected)},
		{"Variants written", count(&s.VariantsWritten)},
		{"Variants failed", count(&s.VariantsFailed)},
		{"Widths skipped (no upscale)", count(&s.VariantsSkipped)},
		{"Bytes read", humanize.Bytes(uint64(atomic.LoadInt64(&s.BytesRead)))},
		{"Bytes written", humanize.Bytes(uint64(atomic.LoadInt64(&s.BytesWritten)))},
		{"Directories scanned", count(&s.DirectoriesScanned)},
		{"Directories created", count(&s.DirectoriesCreated)},
		{"Duration", duration.Round(time.Millisecond).String()},
		{"Sources/second", strconv.FormatFloat(perSecond, 'f', 2, 64)},
		{"Failures", strconv.FormatInt(s.Failures(), 10)},
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("Image Optimizer Summary")
	tw.AppendHeader(table.Row{"Metric", "Value"})
	for _, r := range rows {
		tw.AppendRow(table.Row{r[0], r[1]})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

// GetFormatBreakdown returns the number of derivatives written per format.
func (s *Statistics) GetFormatBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FormatStats) == 0 {
		return "No derivatives written"
	}

	formats := make([]string, 0, len(s.FormatStats))
	for f := range s.FormatStats {
		formats = append(formats, f)
	}
	sort.Strings(formats)

	var b strings.Builder
	b.WriteString("Derivatives by format:\n")
	for _, f := range formats {
		fmt.Fprintf(&b, "  %s: %d\n", f, s.FormatStats[f])
	}
	return b.String()
}

// GetErrorSummary returns the first ten recorded errors.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

func count(v *int64) string {
	return humanize.Comma(atomic.LoadInt64(v))
}
