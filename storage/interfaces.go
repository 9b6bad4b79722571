package storage

import (
	"context"

	"github.com/poiesic/importer/core"
)

// PositionRepository persists import positions, one row per (partition, value type).
// Implementations must be thread-safe and support concurrent access.
type PositionRepository interface {
	// LoadPosition retrieves the stored position for a stream.
	// Returns nil, nil if no position has been saved yet.
	LoadPosition(ctx context.Context, partitionID int, valueType core.ValueType) (*core.ImportPosition, error)

	// SavePositions persists positions atomically.
	// A position lower than the one already stored for the same stream is
	// skipped, so stored positions never move backwards.
	// Sets UpdatedAt on every position actually written.
	SavePositions(ctx context.Context, positions ...*core.ImportPosition) error

	// ListPositions returns every stored position ordered by value type, then partition.
	ListPositions(ctx context.Context) ([]*core.ImportPosition, error)

	// DeletePositions removes stored positions for the given value types,
	// or all positions if none are given. Used for controlled reimports.
	// Returns the number of positions removed.
	DeletePositions(ctx context.Context, valueTypes ...core.ValueType) (int, error)

	// Close releases resources held by the repository.
	Close() error
}
