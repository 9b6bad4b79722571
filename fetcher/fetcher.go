package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/source"
)

// Page is the result of one fetch.
type Page struct {
	Records []*core.Record
	Mode    core.QueryMode
	From    core.FetchState // State the query was built from
	Size    int             // Requested page size
	// CaughtUp is set when the stream is known to hold nothing beyond From.Position
	CaughtUp bool
}

// Full reports whether more records are likely available: the page came
// back at its requested size, or a sequence page reached the end of its
// window even though gaps kept it short.
func (p Page) Full() bool {
	if p.Size <= 0 || len(p.Records) == 0 {
		return false
	}
	if len(p.Records) >= p.Size {
		return true
	}
	if p.Mode == core.QueryBySequence {
		return p.Records[len(p.Records)-1].Sequence >= p.From.Sequence+int64(p.Size)
	}
	return false
}

// Batch converts the page into an import batch for the given stream.
func (p Page) Batch(id string, key core.StreamKey) *core.ImportBatch {
	b := &core.ImportBatch{
		ID:          id,
		PartitionID: key.PartitionID,
		ValueType:   key.ValueType,
		Records:     p.Records,
		From:        p.From,
		Mode:        p.Mode,
	}
	if last := b.Last(); last != nil {
		b.LastIndexName = last.IndexName
	}
	return b
}

// Fetcher reads pages for one stream. It holds no per-stream progress; all
// of that travels in the core.FetchState passed to and returned from Fetch.
// A Fetcher is safe for concurrent use.
type Fetcher struct {
	src     source.Source
	key     core.StreamKey
	pattern string
	config  Config
	logger  *slog.Logger
}

// New creates a fetcher for one stream.
func New(src source.Source, key core.StreamKey, config Config, logger *slog.Logger) (*Fetcher, error) {
	if src == nil {
		return nil, errors.New("source cannot be nil")
	}
	if err := core.ValidateValueType(key.ValueType); err != nil {
		return nil, err
	}
	if key.PartitionID < 1 {
		return nil, core.ErrInvalidPartition
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetcher config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		src:     src,
		key:     key,
		pattern: source.IndexPattern(config.IndexPrefix, key.ValueType),
		config:  config,
		logger:  logger.With("stream", key.String()),
	}, nil
}

// Key returns the stream the fetcher reads.
func (f *Fetcher) Key() core.StreamKey {
	return f.key
}

// IndexPattern returns the pattern matching the stream's indices.
func (f *Fetcher) IndexPattern() string {
	return f.pattern
}

// Mode returns the query mode the next fetch from state will use.
func (f *Fetcher) Mode(state core.FetchState) core.QueryMode {
	if state.HasSeenSequence && !f.config.UseOnlyPositionQuery && !state.ForcePositionQuery {
		return core.QueryBySequence
	}
	return core.QueryByPosition
}

// Fetch reads the next page after state. It never changes state.Position or
// state.Sequence; the caller advances those once the page is imported.
// ForcePositionQuery survives a non-empty page so a failed import is retried
// with the same query; the caller clears it after the commit.
// On error the returned state carries a reduced batch size.
func (f *Fetcher) Fetch(ctx context.Context, state core.FetchState) (Page, core.FetchState, error) {
	state.BatchSize = f.clampBatchSize(state.BatchSize)
	mode := f.Mode(state)
	page := Page{Mode: mode, From: state, Size: state.BatchSize}
	next := state

	records, err := f.query(ctx, state, mode)
	if err != nil {
		next.BatchSize = max(f.config.MinBatchSize, state.BatchSize/2)
		f.logger.Warn("fetch failed", "mode", mode.String(), "error", err, "next_batch_size", next.BatchSize)
		return page, next, fmt.Errorf("fetch %s: %w", f.key, err)
	}
	page.Records = records

	if len(records) > 0 {
		next.ConsecutiveEmptyPages = 0
		if mode == core.QueryByPosition {
			for _, r := range records {
				if r.Sequence > 0 {
					next.HasSeenSequence = true
					break
				}
			}
		}
		if page.Full() {
			next.BatchSize = min(f.config.MaxBatchSize, state.BatchSize*2)
		}
		return page, next, nil
	}

	next.ConsecutiveEmptyPages = state.ConsecutiveEmptyPages + 1
	if mode == core.QueryByPosition {
		next.ForcePositionQuery = false
		page.CaughtUp = true
		return page, next, nil
	}
	if next.ConsecutiveEmptyPages < f.config.MaxEmptyPages {
		return page, next, nil
	}

	// The sequence window keeps coming back empty; check whether records
	// exist beyond the last position that the window is missing.
	pending, err := f.countAfter(ctx, state.Position)
	if err != nil {
		f.logger.Warn("existence check failed", "error", err)
		return page, next, fmt.Errorf("existence check %s: %w", f.key, err)
	}
	if pending > 0 {
		f.logger.Info("sequence window missed records, switching to position query",
			"position", state.Position, "sequence", state.Sequence, "pending", pending)
		next.ForcePositionQuery = true
		next.ConsecutiveEmptyPages = 0
		return page, next, nil
	}
	page.CaughtUp = true
	return page, next, nil
}

// Refresh makes recently written source data visible.
func (f *Fetcher) Refresh(ctx context.Context) error {
	return f.src.Refresh(ctx, f.pattern)
}

// Reload re-issues the query a page was fetched with.
func (f *Fetcher) Reload(ctx context.Context, state core.FetchState, mode core.QueryMode) ([]*core.Record, error) {
	state.BatchSize = f.clampBatchSize(state.BatchSize)
	records, err := f.query(ctx, state, mode)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", f.key, err)
	}
	return records, nil
}

// Pending counts the records after position. Index-not-found counts as zero.
func (f *Fetcher) Pending(ctx context.Context, position int64) (int64, error) {
	return f.countAfter(ctx, position)
}

func (f *Fetcher) query(ctx context.Context, state core.FetchState, mode core.QueryMode) ([]*core.Record, error) {
	req := source.SearchRequest{
		IndexPattern: f.pattern,
		PartitionID:  f.key.PartitionID,
		Size:         state.BatchSize,
	}
	if mode == core.QueryBySequence {
		req.Filter = source.SequenceRange(state.Sequence, state.Sequence+int64(state.BatchSize))
		req.Sort = source.SortBySequence
	} else {
		req.Filter = source.PositionAfter(f.key.PartitionID, state.Position)
		req.Sort = source.SortByPosition
	}

	records, err := f.src.Search(ctx, req)
	if err != nil {
		if errors.Is(err, source.ErrIndexNotFound) {
			f.logger.Debug("no index yet", "pattern", f.pattern)
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}

func (f *Fetcher) countAfter(ctx context.Context, position int64) (int64, error) {
	n, err := f.src.Count(ctx, f.pattern, source.PositionAfter(f.key.PartitionID, position))
	if err != nil {
		if errors.Is(err, source.ErrIndexNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

func (f *Fetcher) clampBatchSize(size int) int {
	if size <= 0 {
		return f.config.MaxBatchSize
	}
	return min(max(size, f.config.MinBatchSize), f.config.MaxBatchSize)
}
