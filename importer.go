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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/importer/backfill"
	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/destination"
	mongodest "github.com/poiesic/importer/destination/mongo"
	"github.com/poiesic/importer/destination/sqlite"
	"github.com/poiesic/importer/ingestion"
	"github.com/poiesic/importer/metrics"
	"github.com/poiesic/importer/processor"
	"github.com/poiesic/importer/source"
	mongosrc "github.com/poiesic/importer/source/mongo"
	"github.com/poiesic/importer/storage"
	"github.com/poiesic/importer/storage/badger"
)

// ErrMongoDestinationNeedsClient is returned when the mongo destination is
// selected but the source does not provide a MongoDB connection.
var ErrMongoDestinationNeedsClient = errors.New("mongo destination requires the mongo source")

// Importer owns the storage, source and destination of one importer instance.
type Importer struct {
	config    *Config
	backend   *badger.Backend
	repo      storage.PositionRepository
	positions *ingestion.PositionStore
	src       source.Source
	writer    destination.Writer
	registry  *processor.Registry
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// Option configures an Importer.
type Option func(*options)

type options struct {
	logger *slog.Logger
	source source.Source
	writer destination.Writer
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSource uses src instead of connecting to MongoDB. The importer takes
// ownership and closes it.
func WithSource(src source.Source) Option {
	return func(o *options) {
		o.source = src
	}
}

// WithWriter uses w instead of the configured destination. The importer
// takes ownership and closes it.
func WithWriter(w destination.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// New opens the position store, connects the source and opens the destination.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Importer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger

	im := &Importer{config: cfg, metrics: metrics.NewCollector(), logger: logger}
	ok := false
	defer func() {
		if !ok {
			im.Close()
		}
	}()

	backend, err := badger.OpenBackend(cfg.PositionsPath, cfg.PositionsPath == "")
	if err != nil {
		return nil, fmt.Errorf("failed to open position storage: %w", err)
	}
	im.backend = backend
	im.repo = badger.NewPositionRepository(backend)

	im.positions, err = ingestion.NewPositionStore(im.repo, cfg.FlushInterval, logger)
	if err != nil {
		return nil, err
	}

	im.src = o.source
	if im.src == nil {
		ms, err := mongosrc.Connect(ctx, cfg.MongoURI, cfg.SourceDatabase, mongosrc.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		im.src = ms
	}

	im.writer = o.writer
	if im.writer == nil {
		im.writer, err = openWriter(cfg, im.src, logger)
		if err != nil {
			return nil, err
		}
	}

	im.registry, err = processor.DefaultRegistry(im.writer, logger)
	if err != nil {
		return nil, err
	}

	ok = true
	logger.Info("importer opened",
		"positions", cfg.PositionsPath, "destination", cfg.Destination, "streams", len(cfg.Streams()))
	return im, nil
}

func openWriter(cfg *Config, src source.Source, logger *slog.Logger) (destination.Writer, error) {
	switch cfg.Destination {
	case DestinationMongo:
		ms, ok := src.(*mongosrc.Source)
		if !ok {
			return nil, ErrMongoDestinationNeedsClient
		}
		w, err := mongodest.New(ms.Client(), cfg.DestinationDatabase, cfg.DestinationCollection, logger)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		w, err := sqlite.Open(cfg.DestinationPath, logger)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// Close flushes positions and releases every resource. It is safe to call on
// a partially opened importer.
func (im *Importer) Close() error {
	var errs []error
	if im.positions != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := im.positions.Close(ctx); err != nil {
			im.logger.Error("error flushing positions", "err", err)
			errs = append(errs, err)
		}
		cancel()
	}
	if im.writer != nil {
		if err := im.writer.Close(); err != nil {
			im.logger.Error("error closing destination", "err", err)
			errs = append(errs, err)
		}
	}
	if im.src != nil {
		if err := im.src.Close(); err != nil {
			im.logger.Error("error closing source", "err", err)
			errs = append(errs, err)
		}
	}
	if im.repo != nil {
		if err := im.repo.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if im.backend != nil {
		if err := im.backend.Close(); err != nil {
			im.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config returns the validated configuration.
func (im *Importer) Config() *Config {
	return im.config
}

// Metrics returns the collector fed by every scheduler the importer creates.
func (im *Importer) Metrics() *metrics.Collector {
	return im.metrics
}

// Source returns the record source.
func (im *Importer) Source() source.Source {
	return im.src
}

// NewScheduler creates a scheduler for the configured streams. opts are
// applied after the configured ones.
func (im *Importer) NewScheduler(opts ...ingestion.Option) (*ingestion.Scheduler, error) {
	return im.newScheduler(im.config.Streams(), opts...)
}

func (im *Importer) newScheduler(streams []core.StreamKey, opts ...ingestion.Option) (*ingestion.Scheduler, error) {
	cfg := im.config
	base := []ingestion.Option{
		ingestion.WithPoolSize(cfg.PoolSize),
		ingestion.WithBackoff(cfg.Backoff, cfg.MaxBackoff),
		ingestion.WithFetcherConfig(cfg.FetcherConfig()),
		ingestion.WithListener(im.metrics),
		ingestion.WithLogger(im.logger),
	}
	if cfg.QueueSize > 0 {
		base = append(base, ingestion.WithQueueSize(cfg.QueueSize))
	}
	return ingestion.NewScheduler(im.src, im.registry, im.positions, streams, append(base, opts...)...)
}

// NewBackfiller creates a backfiller for the configured streams. A nil cfg
// uses backfill.DefaultConfig. Streams and the index prefix always come from
// the importer configuration.
// progress: where to write progress output (typically os.Stderr)
func (im *Importer) NewBackfiller(cfg *backfill.Config, progress io.Writer) (*backfill.Backfiller, error) {
	if cfg == nil {
		cfg = backfill.DefaultConfig()
	}
	cfg.Partitions = im.config.Partitions
	cfg.ValueTypes = im.config.ValueTypes
	cfg.IndexPrefix = im.config.IndexPrefix
	return backfill.NewBackfiller(im.src, im.repo, im.positions, im.newScheduler, cfg, progress, im.logger)
}

// Positions returns every stored import position.
func (im *Importer) Positions(ctx context.Context) ([]*core.ImportPosition, error) {
	if err := im.positions.Flush(ctx); err != nil {
		return nil, err
	}
	return im.repo.ListPositions(ctx)
}

// ResetPositions deletes the stored positions of the given value types, or of
// every stream when none are given. The next import of those streams starts
// from the beginning.
func (im *Importer) ResetPositions(ctx context.Context, valueTypes ...core.ValueType) (int, error) {
	deleted, err := im.repo.DeletePositions(ctx, valueTypes...)
	if err != nil {
		return 0, err
	}
	im.positions.Forget(valueTypes...)
	im.logger.Info("positions reset", "valueTypes", valueTypes, "deleted", deleted)
	return deleted, nil
}
