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


package backfill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/ingestion"
	"github.com/poiesic/importer/source"
	"github.com/poiesic/importer/storage"
)

// SchedulerFactory builds a scheduler for the given streams.
type SchedulerFactory func(streams []core.StreamKey, opts ...ingestion.Option) (*ingestion.Scheduler, error)

// Backfiller imports the current backlog of a set of streams and returns
// once all of them are caught up.
type Backfiller struct {
	src          source.Source
	repo         storage.PositionRepository
	positions    *ingestion.PositionStore
	newScheduler SchedulerFactory
	config       *Config
	progress     io.Writer
	logger       *slog.Logger
}

// NewBackfiller creates a new backfiller.
// progress: where to write progress output (typically os.Stderr)
func NewBackfiller(
	src source.Source,
	repo storage.PositionRepository,
	positions *ingestion.PositionStore,
	newScheduler SchedulerFactory,
	config *Config,
	progress io.Writer,
	logger *slog.Logger,
) (*Backfiller, error) {
	if src == nil {
		return nil, ingestion.ErrSourceRequired
	}
	if repo == nil || positions == nil {
		return nil, ingestion.ErrPositionRepositoryRequired
	}
	if newScheduler == nil {
		return nil, ErrSchedulerFactoryRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if len(config.Streams()) == 0 {
		return nil, ErrNoStreams
	}
	if logger == nil {
		logger = slog.Default()
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Backfiller{
		src:          src,
		repo:         repo,
		positions:    positions,
		newScheduler: newScheduler,
		config:       config,
		progress:     progress,
		logger:       logger.With("component", "backfill"),
	}, nil
}

// Run executes the backfill. Progress is reported to the configured writer.
func (b *Backfiller) Run(ctx context.Context) error {
	streams := b.config.Streams()

	err := RetryWithBackoff(ctx, b.ping, b.config.MaxRetries, b.config.RetryDelay, 30*time.Second)
	if err != nil {
		return fmt.Errorf("source unreachable: %w", err)
	}

	if b.config.Reset {
		if err := b.reset(ctx); err != nil {
			return err
		}
	}

	backlog, err := b.Backlog(ctx, streams)
	if err != nil {
		return err
	}
	if backlog == 0 {
		fmt.Fprintf(b.progress, "Nothing to import (0 records behind)\n")
		return nil
	}

	fmt.Fprintf(b.progress, "Starting backfill of %d records across %d streams\n", backlog, len(streams))

	tracker := NewProgressTracker(b.progress, backlog, int64(b.config.ReportInterval))
	scheduler, err := b.newScheduler(streams,
		ingestion.WithListener(tracker),
		ingestion.WithStopWhenCaughtUp())
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	tracker.Start()
	if err := scheduler.Run(ctx); err != nil {
		return fmt.Errorf("backfill stopped: %w", err)
	}
	tracker.Finish()

	if err := ctx.Err(); err != nil {
		return err
	}

	elapsed := tracker.Elapsed()
	imported := tracker.Current()
	fmt.Fprintf(b.progress, "Backfill complete. Imported %d records in %v (%.1f records/sec)\n",
		imported, elapsed.Round(time.Millisecond), float64(imported)/elapsed.Seconds())
	return nil
}

// Backlog returns the number of records after the loaded position of every
// stream. Streams whose indices do not exist yet count as empty.
func (b *Backfiller) Backlog(ctx context.Context, streams []core.StreamKey) (int64, error) {
	var total int64
	for _, key := range streams {
		pos, err := b.positions.Load(ctx, key)
		if err != nil {
			return 0, err
		}
		pattern := source.IndexPattern(b.config.IndexPrefix, key.ValueType)
		n, err := b.src.Count(ctx, pattern, source.PositionAfter(key.PartitionID, pos.Position))
		if errors.Is(err, source.ErrIndexNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("count backlog %s: %w", key, err)
		}
		b.logger.Debug("stream backlog", "stream", key, "position", pos.Position, "records", n)
		total += n
	}
	return total, nil
}

func (b *Backfiller) reset(ctx context.Context) error {
	valueTypes := b.config.ValueTypes
	if len(valueTypes) == 0 {
		valueTypes = core.AllValueTypes
	}
	deleted, err := b.repo.DeletePositions(ctx, valueTypes...)
	if err != nil {
		return fmt.Errorf("failed to reset positions: %w", err)
	}
	b.positions.Forget(valueTypes...)
	b.logger.Info("positions reset", "valueTypes", valueTypes, "deleted", deleted)
	return nil
}

func (b *Backfiller) ping(ctx context.Context) error {
	key := b.config.Streams()[0]
	pattern := source.IndexPattern(b.config.IndexPrefix, key.ValueType)
	_, err := b.src.Count(ctx, pattern, source.PositionAfter(key.PartitionID, 0))
	if errors.Is(err, source.ErrIndexNotFound) {
		return nil
	}
	return err
}
