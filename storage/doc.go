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


// Package storage provides the persistence abstraction for import positions.
//
// An import position records how far one stream, a (partition, value type)
// pair, has been imported. Positions are read once at startup to resume and
// written after every successfully imported page.
//
// # Architecture
//
//   - PositionRepository: durable point reads and writes keyed by stream
//   - ImportPositionMUS: the binary encoding used by the BadgerDB backend
//
// # Usage
//
// Open a repository backed by BadgerDB:
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//	repo := badger.NewPositionRepository(backend)
//
// Use in tests with in-memory storage:
//
//	repo, backend, err := badger.NewMemoryPositionRepository()
//
// # Monotonicity
//
// Saving never lowers a stored position. A stale save, for instance one
// computed from a page that was re-imported after a restart, is skipped.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
