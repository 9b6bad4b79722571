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


package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/storage"
)

// PositionRepository implements storage.PositionRepository for BadgerDB.
type PositionRepository struct {
	backend *Backend
}

var _ storage.PositionRepository = (*PositionRepository)(nil)

// NewPositionRepository creates a new PositionRepository.
func NewPositionRepository(backend *Backend) *PositionRepository {
	return &PositionRepository{
		backend: backend,
	}
}

// Close is a no-op; the backend is owned and closed by the caller.
func (r *PositionRepository) Close() error {
	return nil
}

// SavePositions persists positions in a single transaction.
// Positions behind the stored value for their stream are skipped.
func (r *PositionRepository) SavePositions(ctx context.Context, positions ...*core.ImportPosition) error {
	if len(positions) == 0 {
		return nil
	}
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	for _, pos := range positions {
		if err := core.ValidateImportPosition(pos); err != nil {
			return err
		}
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, pos := range positions {
			key := makePositionKey(pos.ValueType, pos.PartitionID)

			stored, err := readPosition(tx, key)
			if err != nil {
				return err
			}
			if stored != nil && stored.Position > pos.Position {
				r.backend.logger.Warn("skipping stale import position",
					"stream", pos.Key().String(), "stored", stored.Position, "incoming", pos.Position)
				continue
			}

			pos.UpdatedAt = now
			if err := tx.Set(key, storage.MarshalImportPosition(pos)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// LoadPosition retrieves the position for a stream.
// Returns nil, nil if no position exists.
func (r *PositionRepository) LoadPosition(ctx context.Context, partitionID int, valueType core.ValueType) (*core.ImportPosition, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var pos *core.ImportPosition
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		pos, err = readPosition(tx, makePositionKey(valueType, partitionID))
		return err
	}, false)

	return pos, err
}

// ListPositions returns all stored positions in key order.
func (r *PositionRepository) ListPositions(ctx context.Context) ([]*core.ImportPosition, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var positions []*core.ImportPosition
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = positionPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				pos, err := storage.UnmarshalImportPosition(val)
				if err != nil {
					return err
				}
				positions = append(positions, pos)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)

	return positions, err
}

// DeletePositions removes positions for the given value types, or all of them.
func (r *PositionRepository) DeletePositions(ctx context.Context, valueTypes ...core.ValueType) (int, error) {
	if r.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}

	prefixes := [][]byte{positionPrefix()}
	if len(valueTypes) > 0 {
		prefixes = prefixes[:0]
		for _, vt := range valueTypes {
			prefixes = append(prefixes, makePartialPositionKey(vt))
		}
	}

	deleted := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var keys [][]byte
		for _, prefix := range prefixes {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			iter := tx.NewIterator(opts)
			for iter.Rewind(); iter.Valid(); iter.Next() {
				keys = append(keys, iter.Item().KeyCopy(nil))
			}
			iter.Close()
		}

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		deleted = len(keys)
		return tx.Commit()
	}, true)

	return deleted, err
}

// readPosition reads a position within a transaction. Returns nil, nil if absent.
func readPosition(tx *badger.Txn, key []byte) (*core.ImportPosition, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var pos *core.ImportPosition
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		pos, unmarshalErr = storage.UnmarshalImportPosition(val)
		return unmarshalErr
	})
	return pos, err
}
