package fetcher

import (
	"errors"
	"fmt"

	"github.com/poiesic/importer/source"
)

// Config holds fetcher parameters.
type Config struct {
	// IndexPrefix is the prefix of source index names
	IndexPrefix string
	// MinBatchSize is the smallest page size used after repeated errors
	MinBatchSize int
	// MaxBatchSize is the initial and largest page size
	MaxBatchSize int
	// MaxEmptyPages is the number of consecutive empty sequence pages after
	// which an existence check is issued
	MaxEmptyPages int
	// UseOnlyPositionQuery disables sequence queries for sources with unreliable sequences
	UseOnlyPositionQuery bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		IndexPrefix:   source.DefaultIndexPrefix,
		MinBatchSize:  10,
		MaxBatchSize:  500,
		MaxEmptyPages: 3,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.IndexPrefix == "" {
		return errors.New("index prefix cannot be empty")
	}
	if c.MinBatchSize < 1 {
		return fmt.Errorf("min batch size must be at least 1, got %d", c.MinBatchSize)
	}
	if c.MaxBatchSize < c.MinBatchSize {
		return fmt.Errorf("max batch size %d is below min batch size %d", c.MaxBatchSize, c.MinBatchSize)
	}
	if c.MaxEmptyPages < 1 {
		return fmt.Errorf("max empty pages must be at least 1, got %d", c.MaxEmptyPages)
	}
	return nil
}
