package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/importer/core"
)

// Job imports one fetched page of a single stream.
type Job struct {
	reloader  reloader
	registry  resolver
	positions *PositionStore
	listener  Listener
	logger    *slog.Logger
}

// NewJob creates a job. listener may be nil.
func NewJob(r reloader, registry resolver, positions *PositionStore, listener Listener, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	if listener == nil {
		listener = ListenerFuncs{}
	}
	return &Job{
		reloader:  r,
		registry:  registry,
		positions: positions,
		listener:  listener,
		logger:    logger,
	}
}

// Run imports batch on top of previous, the stream's last loaded position.
// It returns the new position and true on success. On failure the returned
// position is previous and nothing was committed.
func (j *Job) Run(ctx context.Context, batch *core.ImportBatch, previous core.ImportPosition) (core.ImportPosition, bool) {
	if batch.Len() == 0 {
		return previous, true
	}
	start := time.Now()
	logger := j.logger.With("batch", batch.ID, "stream", batch.Key().String())

	batch, err := j.refreshIfIndexChanged(ctx, batch, previous)
	if err != nil {
		return j.fail(logger, batch, previous, err)
	}
	if batch.Len() == 0 {
		return previous, true
	}

	subs := SplitByIndex(batch)
	for _, sub := range subs {
		if err := j.process(ctx, sub); err != nil {
			return j.fail(logger, batch, previous, err)
		}
	}

	last := batch.Last()
	next := core.ImportPosition{
		PartitionID: batch.PartitionID,
		ValueType:   batch.ValueType,
		Position:    last.Position,
		Sequence:    last.Sequence,
		IndexName:   last.IndexName,
	}
	if next.Position < previous.Position {
		next = previous
	}
	if err := j.positions.MarkLoaded(ctx, next); err != nil {
		return j.fail(logger, batch, previous, err)
	}

	for _, sub := range subs {
		j.listener.OnBatchFinished(sub)
	}

	logger.Debug("imported batch",
		"records", batch.Len(), "sub_batches", len(subs),
		"position", next.Position, "index", next.IndexName, "elapsed", time.Since(start))
	return next, true
}

// refreshIfIndexChanged refreshes the source and re-reads the page when it
// spans several indices or ends in an index other than the previous
// position's. Data just flushed around a rollover becomes visible first.
func (j *Job) refreshIfIndexChanged(ctx context.Context, batch *core.ImportBatch, previous core.ImportPosition) (*core.ImportBatch, error) {
	if len(batch.IndexNames()) <= 1 && batch.LastIndexName == previous.IndexName {
		return batch, nil
	}

	if err := j.reloader.Refresh(ctx); err != nil {
		return batch, fmt.Errorf("refresh source: %w", err)
	}
	records, err := j.reloader.Reload(ctx, batch.From, batch.Mode)
	if err != nil {
		return batch, err
	}

	reloaded := *batch
	reloaded.Records = records
	reloaded.LastIndexName = ""
	if last := reloaded.Last(); last != nil {
		reloaded.LastIndexName = last.IndexName
	}
	j.logger.Debug("index changed, page reloaded",
		"batch", batch.ID, "previous_index", previous.IndexName,
		"indices", reloaded.IndexNames(), "records", len(records))
	return &reloaded, nil
}

func (j *Job) process(ctx context.Context, sub *core.ImportBatch) (err error) {
	p, version := j.registry.Resolve(sub.LastIndexName)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: version %s, index %s: %v", ErrProcessorPanic, version, sub.LastIndexName, r)
		}
	}()
	if err := p.Process(ctx, sub); err != nil {
		return fmt.Errorf("process %d records of %s with version %s: %w",
			sub.Len(), sub.LastIndexName, version, err)
	}
	return nil
}

func (j *Job) fail(logger *slog.Logger, batch *core.ImportBatch, previous core.ImportPosition, err error) (core.ImportPosition, bool) {
	logger.Error("batch failed", "records", batch.Len(), "position", previous.Position, "error", err)
	j.listener.OnBatchFailed(batch, err)
	return previous, false
}
