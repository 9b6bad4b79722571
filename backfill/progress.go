package backfill

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/ingestion"
)

// ProgressTracker reports backfill progress. It listens to imported
// sub-batches and writes a progress line every reportInterval records.
type ProgressTracker struct {
	writer         io.Writer
	total          int64
	current        int64
	failures       int64
	reportInterval int64
	lastReported   int64
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

var _ ingestion.Listener = (*ProgressTracker)(nil)

// NewProgressTracker creates a new progress tracker.
// writer: where to write progress output (typically os.Stderr)
// total: expected number of records
// reportInterval: report progress every N records
func NewProgressTracker(writer io.Writer, total, reportInterval int64) *ProgressTracker {
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		total:          total,
		reportInterval: reportInterval,
	}
}

// Start begins tracking progress.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.current = 0
	p.failures = 0
	p.lastReported = 0
}

// OnBatchFinished implements ingestion.Listener.
func (p *ProgressTracker) OnBatchFinished(batch *core.ImportBatch) {
	p.Increment(int64(batch.Len()))
}

// OnBatchFailed implements ingestion.Listener.
func (p *ProgressTracker) OnBatchFailed(batch *core.ImportBatch, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures++
}

// Increment increases the current progress by delta records.
// Records that arrived after the backlog was counted push the total up.
func (p *ProgressTracker) Increment(delta int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.current += delta
	if p.current > p.total {
		p.total = p.current
	}

	if p.current-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.current
	}
}

// Finish prints the final progress line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.report()
	fmt.Fprintln(p.writer)
}

// Current returns the number of records imported so far.
func (p *ProgressTracker) Current() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Failures returns the number of failed pages so far.
func (p *ProgressTracker) Failures() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// Elapsed returns the time elapsed since Start was called.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}

	return time.Since(p.startTime)
}

// report prints the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := float64(p.current) / elapsed.Seconds()

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rImported: %d/%d (%.1f%%) - %.1f records/s - %d failed pages",
		p.current, p.total, percentage, rate, p.failures)
}
