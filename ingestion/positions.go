package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/storage"
)

// PositionStore tracks two positions per stream on top of a repository.
//
// The scheduled position moves forward as soon as a page is handed to a
// worker. The loaded position moves only after the page was imported and is
// the only one ever persisted, so a restart resumes from imported data.
//
// With a zero flush interval every loaded position is written through to the
// repository. Otherwise loaded positions are flushed periodically and on Close.
type PositionStore struct {
	repo          storage.PositionRepository
	flushInterval time.Duration
	logger        *slog.Logger

	mu        sync.Mutex
	scheduled map[core.StreamKey]core.ImportPosition
	loaded    map[core.StreamKey]core.ImportPosition
	dirty     map[core.StreamKey]struct{}

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewPositionStore creates a store and, for a positive flush interval, starts its flusher.
func NewPositionStore(repo storage.PositionRepository, flushInterval time.Duration, logger *slog.Logger) (*PositionStore, error) {
	if repo == nil {
		return nil, ErrPositionRepositoryRequired
	}
	if flushInterval < 0 {
		return nil, fmt.Errorf("flush interval cannot be negative: %s", flushInterval)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &PositionStore{
		repo:          repo,
		flushInterval: flushInterval,
		logger:        logger.With("component", "positions"),
		scheduled:     make(map[core.StreamKey]core.ImportPosition),
		loaded:        make(map[core.StreamKey]core.ImportPosition),
		dirty:         make(map[core.StreamKey]struct{}),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	if flushInterval > 0 {
		go s.flushLoop()
	} else {
		close(s.done)
	}
	return s, nil
}

// Load returns the loaded position of a stream, reading it from the
// repository the first time. A stream without a stored position starts at zero.
func (s *PositionStore) Load(ctx context.Context, key core.StreamKey) (core.ImportPosition, error) {
	s.mu.Lock()
	if pos, ok := s.loaded[key]; ok {
		s.mu.Unlock()
		return pos, nil
	}
	s.mu.Unlock()

	stored, err := s.repo.LoadPosition(ctx, key.PartitionID, key.ValueType)
	if err != nil {
		return core.ImportPosition{}, fmt.Errorf("load position %s: %w", key, err)
	}
	pos := core.ImportPosition{PartitionID: key.PartitionID, ValueType: key.ValueType}
	if stored != nil {
		pos = *stored
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another caller may have loaded or advanced it meanwhile.
	if current, ok := s.loaded[key]; ok {
		return current, nil
	}
	s.loaded[key] = pos
	s.scheduled[key] = pos
	return pos, nil
}

// Loaded returns the in-memory loaded position of a stream.
func (s *PositionStore) Loaded(key core.StreamKey) (core.ImportPosition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.loaded[key]
	return pos, ok
}

// Scheduled returns the scheduled position of a stream.
func (s *PositionStore) Scheduled(key core.StreamKey) (core.ImportPosition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.scheduled[key]
	return pos, ok
}

// MarkScheduled records that work up to pos was handed to a worker.
func (s *PositionStore) MarkScheduled(pos core.ImportPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pos.Key()
	if current, ok := s.scheduled[key]; ok && current.Position > pos.Position {
		return
	}
	s.scheduled[key] = pos
}

// ResetScheduled moves the scheduled position back to the loaded one after a failed page.
func (s *PositionStore) ResetScheduled(key core.StreamKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos, ok := s.loaded[key]; ok {
		s.scheduled[key] = pos
	} else {
		delete(s.scheduled, key)
	}
}

// MarkLoaded commits an imported position. Positions behind the current
// loaded one are ignored. In write-through mode the position is persisted
// before the in-memory value changes, and a persistence error leaves both untouched.
func (s *PositionStore) MarkLoaded(ctx context.Context, pos core.ImportPosition) error {
	if err := core.ValidateImportPosition(&pos); err != nil {
		return err
	}
	key := pos.Key()

	s.mu.Lock()
	if current, ok := s.loaded[key]; ok && current.Position > pos.Position {
		s.mu.Unlock()
		s.logger.Warn("ignoring position behind loaded position",
			"stream", key.String(), "loaded", current.Position, "incoming", pos.Position)
		return nil
	}
	s.mu.Unlock()

	if s.flushInterval == 0 {
		saved := pos
		if err := s.repo.SavePositions(ctx, &saved); err != nil {
			return fmt.Errorf("save position %s: %w", key, err)
		}
		pos.UpdatedAt = saved.UpdatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded[key] = pos
	if current, ok := s.scheduled[key]; !ok || current.Position < pos.Position {
		s.scheduled[key] = pos
	}
	if s.flushInterval > 0 {
		s.dirty[key] = struct{}{}
	}
	return nil
}

// MarkCompleted flags a stream as caught up. Streams that never imported
// anything are left alone so no empty rows are created.
func (s *PositionStore) MarkCompleted(ctx context.Context, key core.StreamKey) error {
	s.mu.Lock()
	pos, ok := s.loaded[key]
	if !ok || pos.Completed || pos.Position == 0 {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	pos.Completed = true
	return s.MarkLoaded(ctx, pos)
}

// Flush persists every loaded position changed since the last flush.
func (s *PositionStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.dirty) == 0 {
		s.mu.Unlock()
		return nil
	}
	positions := make([]*core.ImportPosition, 0, len(s.dirty))
	for key := range s.dirty {
		pos := s.loaded[key]
		positions = append(positions, &pos)
	}
	s.dirty = make(map[core.StreamKey]struct{})
	s.mu.Unlock()

	if err := s.repo.SavePositions(ctx, positions...); err != nil {
		// Put them back so the next flush retries.
		s.mu.Lock()
		for _, pos := range positions {
			s.dirty[pos.Key()] = struct{}{}
		}
		s.mu.Unlock()
		return fmt.Errorf("flush positions: %w", err)
	}

	s.logger.Debug("flushed positions", "count", len(positions))
	return nil
}

// Forget drops cached positions for the given value types so they are read
// again from the repository. Used after a controlled reset.
func (s *PositionStore) Forget(valueTypes ...core.ValueType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match := make(map[core.ValueType]bool, len(valueTypes))
	for _, vt := range valueTypes {
		match[vt] = true
	}
	for key := range s.loaded {
		if len(valueTypes) == 0 || match[key.ValueType] {
			delete(s.loaded, key)
			delete(s.scheduled, key)
			delete(s.dirty, key)
		}
	}
}

// Close stops the flusher and performs a final flush.
func (s *PositionStore) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
	return s.Flush(ctx)
}

func (s *PositionStore) flushLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.Flush(context.Background()); err != nil {
				s.logger.Error("periodic flush failed", "error", err)
			}
		}
	}
}
