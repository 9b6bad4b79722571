package source

import (
	"context"
	"fmt"

	"github.com/poiesic/importer/core"
)

// FilterKind selects one of the two query shapes.
type FilterKind int

const (
	// FilterPosition matches partitionId == P AND position > X.
	FilterPosition FilterKind = iota
	// FilterSequence matches sequence in (From, To].
	FilterSequence
)

// Filter is the predicate of a search or count.
type Filter struct {
	Kind        FilterKind
	PartitionID int
	After       int64 // Exclusive lower bound on position or sequence
	UpTo        int64 // Inclusive upper bound on sequence; unused for position filters
}

// PositionAfter builds the position predicate.
func PositionAfter(partitionID int, position int64) Filter {
	return Filter{Kind: FilterPosition, PartitionID: partitionID, After: position}
}

// SequenceRange builds the sequence window predicate (from, to].
func SequenceRange(from, to int64) Filter {
	return Filter{Kind: FilterSequence, After: from, UpTo: to}
}

// Matches reports whether a record satisfies the filter.
func (f Filter) Matches(r *core.Record) bool {
	switch f.Kind {
	case FilterSequence:
		return r.Sequence > f.After && r.Sequence <= f.UpTo
	default:
		return r.PartitionID == f.PartitionID && r.Position > f.After
	}
}

func (f Filter) String() string {
	if f.Kind == FilterSequence {
		return fmt.Sprintf("sequence in (%d, %d]", f.After, f.UpTo)
	}
	return fmt.Sprintf("partitionId == %d AND position > %d", f.PartitionID, f.After)
}

// SortField is the ascending sort key of a search.
type SortField string

const (
	SortByPosition SortField = "position"
	SortBySequence SortField = "sequence"
)

// SortKey returns the value of the sort field for a record.
func (s SortField) SortKey(r *core.Record) int64 {
	if s == SortBySequence {
		return r.Sequence
	}
	return r.Position
}

// SearchRequest describes one page query.
type SearchRequest struct {
	IndexPattern string
	PartitionID  int // Routing; results only come from this partition
	Filter       Filter
	Sort         SortField
	Size         int
}

// Validate checks the request for obvious mistakes.
func (r SearchRequest) Validate() error {
	if r.IndexPattern == "" {
		return fmt.Errorf("%w: index pattern is empty", ErrInvalidRequest)
	}
	if r.Size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidRequest, r.Size)
	}
	if r.Filter.Kind == FilterSequence && r.Filter.UpTo < r.Filter.After {
		return fmt.Errorf("%w: empty sequence window %s", ErrInvalidRequest, r.Filter)
	}
	return nil
}

// Source is the document store the importer reads from.
// Implementations must be safe for concurrent use by multiple readers.
type Source interface {
	// Search returns at most req.Size records ordered ascending by req.Sort.
	// Each returned record carries the name of the index it was read from.
	// Returns ErrIndexNotFound when no index matches the pattern.
	Search(ctx context.Context, req SearchRequest) ([]*core.Record, error)

	// Count returns the number of records matching the filter.
	Count(ctx context.Context, indexPattern string, filter Filter) (int64, error)

	// Refresh makes recently written data visible to searches.
	Refresh(ctx context.Context, indexPattern string) error

	// Close releases resources held by the source.
	Close() error
}
