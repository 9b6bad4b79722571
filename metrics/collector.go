// Package metrics counts import outcomes.
package metrics

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/ingestion"
)

// Collector gathers import metrics with atomic counters. It is an
// ingestion.Listener and is safe for concurrent use.
type Collector struct {
	batchesFinished atomic.Int64
	batchesFailed   atomic.Int64
	recordsImported atomic.Int64
	recordsFailed   atomic.Int64

	mu          sync.Mutex
	byValueType map[core.ValueType]int64
	lastError   string

	startTime time.Time
}

var _ ingestion.Listener = (*Collector)(nil)

func NewCollector() *Collector {
	return &Collector{
		byValueType: make(map[core.ValueType]int64),
		startTime:   time.Now(),
	}
}

// OnBatchFinished implements ingestion.Listener.
func (c *Collector) OnBatchFinished(batch *core.ImportBatch) {
	n := int64(batch.Len())
	c.batchesFinished.Add(1)
	c.recordsImported.Add(n)

	c.mu.Lock()
	c.byValueType[batch.ValueType] += n
	c.mu.Unlock()
}

// OnBatchFailed implements ingestion.Listener.
func (c *Collector) OnBatchFailed(batch *core.ImportBatch, err error) {
	c.batchesFailed.Add(1)
	c.recordsFailed.Add(int64(batch.Len()))

	if err != nil {
		c.mu.Lock()
		c.lastError = err.Error()
		c.mu.Unlock()
	}
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	BatchesFinished int64            `json:"batches_finished"`
	BatchesFailed   int64            `json:"batches_failed"`
	RecordsImported int64            `json:"records_imported"`
	RecordsFailed   int64            `json:"records_failed"`
	ByValueType     map[string]int64 `json:"records_by_value_type"`
	LastError       string           `json:"last_error,omitempty"`
	Uptime          time.Duration    `json:"uptime"`
	Throughput      float64          `json:"records_per_second"`
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() Snapshot {
	elapsed := time.Since(c.startTime)
	imported := c.recordsImported.Load()

	var throughput float64
	if elapsed.Seconds() > 0 {
		throughput = float64(imported) / elapsed.Seconds()
	}

	c.mu.Lock()
	byValueType := make(map[string]int64, len(c.byValueType))
	for vt, n := range c.byValueType {
		byValueType[vt.String()] = n
	}
	lastError := c.lastError
	c.mu.Unlock()

	return Snapshot{
		BatchesFinished: c.batchesFinished.Load(),
		BatchesFailed:   c.batchesFailed.Load(),
		RecordsImported: imported,
		RecordsFailed:   c.recordsFailed.Load(),
		ByValueType:     byValueType,
		LastError:       lastError,
		Uptime:          elapsed,
		Throughput:      throughput,
	}
}

// LogValue implements slog.LogValuer.
func (s Snapshot) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("batches_finished", s.BatchesFinished),
		slog.Int64("batches_failed", s.BatchesFailed),
		slog.Int64("records_imported", s.RecordsImported),
		slog.Int64("records_failed", s.RecordsFailed),
		slog.String("uptime", s.Uptime.Round(time.Second).String()),
		slog.Float64("records_per_second", s.Throughput),
	}
	if s.LastError != "" {
		attrs = append(attrs, slog.String("last_error", s.LastError))
	}
	return slog.GroupValue(attrs...)
}
