package backfill

import (
	"time"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/source"
)

// Config holds configuration for a backfill run.
type Config struct {
	// ValueTypes to import. Empty selects every known value type.
	ValueTypes []core.ValueType

	// Partitions to import
	Partitions []int

	// Reset deletes the stored positions of the selected value types first
	Reset bool

	// IndexPrefix of the source indices
	IndexPrefix string

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts to reach the source
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Partitions:     []int{1},
		IndexPrefix:    source.DefaultIndexPrefix,
		ReportInterval: 1000,
		MaxRetries:     5,
		RetryDelay:     time.Second,
	}
}

// Streams returns every partition and value type combination selected by
// the config, partition-major.
func (c *Config) Streams() []core.StreamKey {
	valueTypes := c.ValueTypes
	if len(valueTypes) == 0 {
		valueTypes = core.AllValueTypes
	}
	streams := make([]core.StreamKey, 0, len(c.Partitions)*len(valueTypes))
	for _, p := range c.Partitions {
		for _, vt := range valueTypes {
			streams = append(streams, core.StreamKey{PartitionID: p, ValueType: vt})
		}
	}
	return streams
}
