// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package importer

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/fetcher"
	"github.com/poiesic/importer/source"
)

// Destination kinds.
const (
	DestinationSQLite = "sqlite"
	DestinationMongo  = "mongo"
)

// Config holds configuration for an Importer.
type Config struct {
	// PositionsPath is the badger directory holding import positions.
	// Empty keeps positions in memory.
	PositionsPath string

	// MongoURI is the connection string of the MongoDB holding the source indices.
	// Example: "mongodb://localhost:27017"
	MongoURI string

	// SourceDatabase is the database whose collections are the source indices.
	SourceDatabase string

	// IndexPrefix is the prefix shared by all source index names.
	// Default: "zeebe-record"
	IndexPrefix string

	// Destination selects the writer: "sqlite" or "mongo".
	Destination string

	// DestinationPath is the SQLite file for the sqlite destination.
	DestinationPath string

	// DestinationDatabase and DestinationCollection locate the mongo destination.
	// The destination shares the source connection.
	DestinationDatabase   string
	DestinationCollection string

	// Partitions and ValueTypes select the streams to import.
	// Empty ValueTypes selects every value type.
	Partitions []int
	ValueTypes []core.ValueType

	// PoolSize is the number of concurrent import jobs.
	PoolSize int

	// QueueSize bounds the number of pages waiting for a worker.
	QueueSize int

	// MinBatchSize and MaxBatchSize bound the adaptive page size.
	MinBatchSize int
	MaxBatchSize int

	// MaxEmptyPages is the number of empty sequence pages before an existence check.
	MaxEmptyPages int

	// UseOnlyPositionQuery disables sequence queries.
	UseOnlyPositionQuery bool

	// FlushInterval is how often positions are persisted. Zero writes through.
	FlushInterval time.Duration

	// Backoff and MaxBackoff bound the per-stream retry delay.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithPositionsPath sets the badger directory for import positions.
func WithPositionsPath(path string) ConfigOption {
	return func(c *Config) {
		c.PositionsPath = path
	}
}

// WithMongo sets the MongoDB connection string and source database.
func WithMongo(uri, database string) ConfigOption {
	return func(c *Config) {
		c.MongoURI = uri
		c.SourceDatabase = database
	}
}

// WithIndexPrefix sets the source index prefix.
func WithIndexPrefix(prefix string) ConfigOption {
	return func(c *Config) {
		c.IndexPrefix = prefix
	}
}

// WithSQLiteDestination writes entities to the given SQLite file.
func WithSQLiteDestination(path string) ConfigOption {
	return func(c *Config) {
		c.Destination = DestinationSQLite
		c.DestinationPath = path
	}
}

// WithMongoDestination writes entities to a MongoDB collection.
func WithMongoDestination(database, collection string) ConfigOption {
	return func(c *Config) {
		c.Destination = DestinationMongo
		c.DestinationDatabase = database
		c.DestinationCollection = collection
	}
}

// WithPartitions sets the partitions to import.
func WithPartitions(partitions ...int) ConfigOption {
	return func(c *Config) {
		c.Partitions = partitions
	}
}

// WithValueTypes sets the value types to import.
func WithValueTypes(valueTypes ...core.ValueType) ConfigOption {
	return func(c *Config) {
		c.ValueTypes = valueTypes
	}
}

// WithPoolSize sets the number of concurrent import jobs.
func WithPoolSize(size int) ConfigOption {
	return func(c *Config) {
		c.PoolSize = size
	}
}

// WithBatchSizes sets the adaptive page size bounds.
func WithBatchSizes(minimum, maximum int) ConfigOption {
	return func(c *Config) {
		c.MinBatchSize = minimum
		c.MaxBatchSize = maximum
	}
}

// WithPositionQueryOnly disables sequence queries.
func WithPositionQueryOnly() ConfigOption {
	return func(c *Config) {
		c.UseOnlyPositionQuery = true
	}
}

// WithFlushInterval sets how often positions are persisted.
func WithFlushInterval(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.FlushInterval = d
	}
}

// WithQueueSize bounds the number of pages waiting for a worker.
func WithQueueSize(size int) ConfigOption {
	return func(c *Config) {
		c.QueueSize = size
	}
}

// WithMaxEmptyPages sets how many empty sequence pages trigger an existence check.
func WithMaxEmptyPages(n int) ConfigOption {
	return func(c *Config) {
		c.MaxEmptyPages = n
	}
}

// WithBackoff sets the per-stream retry delay bounds.
func WithBackoff(initial, maximum time.Duration) ConfigOption {
	return func(c *Config) {
		c.Backoff = initial
		c.MaxBackoff = maximum
	}
}

// DefaultConfig returns a Config with sensible defaults for a local MongoDB
// source and a SQLite destination.
func DefaultConfig() *Config {
	fc := fetcher.DefaultConfig()
	return &Config{
		PositionsPath:   "positions",
		MongoURI:        "mongodb://localhost:27017",
		SourceDatabase:  "zeebe",
		IndexPrefix:     source.DefaultIndexPrefix,
		Destination:     DestinationSQLite,
		DestinationPath: "importer.db",
		Partitions:      []int{1},
		PoolSize:        4,
		MinBatchSize:    fc.MinBatchSize,
		MaxBatchSize:    fc.MaxBatchSize,
		MaxEmptyPages:   fc.MaxEmptyPages,
		FlushInterval:   5 * time.Second,
		Backoff:         time.Second,
		MaxBackoff:      30 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithMongo("mongodb://localhost:27017", "zeebe"),
//	    WithPartitions(1, 2, 3),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize puts the configuration in canonical form: trimmed names, sorted
// unique partitions and value types.
func (c *Config) Normalize() {
	c.IndexPrefix = strings.TrimSuffix(strings.TrimSpace(c.IndexPrefix), "_")
	c.Destination = strings.ToLower(strings.TrimSpace(c.Destination))

	slices.Sort(c.Partitions)
	c.Partitions = slices.Compact(c.Partitions)
	slices.Sort(c.ValueTypes)
	c.ValueTypes = slices.Compact(c.ValueTypes)
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.MongoURI == "" {
		return errors.New("importer config: MongoURI is required")
	}
	if c.SourceDatabase == "" {
		return errors.New("importer config: SourceDatabase is required")
	}
	switch c.Destination {
	case DestinationSQLite:
		if c.DestinationPath == "" {
			return errors.New("importer config: DestinationPath is required for the sqlite destination")
		}
	case DestinationMongo:
		if c.DestinationDatabase == "" {
			return errors.New("importer config: DestinationDatabase is required for the mongo destination")
		}
	default:
		return fmt.Errorf("importer config: unknown destination %q", c.Destination)
	}
	if len(c.Partitions) == 0 {
		return errors.New("importer config: at least one partition is required")
	}
	if c.Partitions[0] < 1 {
		return fmt.Errorf("importer config: invalid partition %d", c.Partitions[0])
	}
	for _, vt := range c.ValueTypes {
		if !slices.Contains(core.AllValueTypes, vt) {
			return fmt.Errorf("importer config: %w: %d", core.ErrInvalidValueType, int(vt))
		}
	}
	if c.PoolSize < 1 {
		return errors.New("importer config: PoolSize must be at least 1")
	}
	if c.QueueSize < 0 {
		return errors.New("importer config: QueueSize cannot be negative")
	}
	if c.FlushInterval < 0 {
		return errors.New("importer config: FlushInterval cannot be negative")
	}
	if c.Backoff <= 0 || c.MaxBackoff < c.Backoff {
		return errors.New("importer config: Backoff must be positive and not above MaxBackoff")
	}
	if err := c.FetcherConfig().Validate(); err != nil {
		return fmt.Errorf("importer config: %w", err)
	}
	return nil
}

// FetcherConfig returns the fetcher settings of the configuration.
func (c *Config) FetcherConfig() fetcher.Config {
	return fetcher.Config{
		IndexPrefix:          c.IndexPrefix,
		MinBatchSize:         c.MinBatchSize,
		MaxBatchSize:         c.MaxBatchSize,
		MaxEmptyPages:        c.MaxEmptyPages,
		UseOnlyPositionQuery: c.UseOnlyPositionQuery,
	}
}

// Streams returns every selected partition and value type combination.
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
