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


// Package source defines the read side of the importer: the document store
// holding the engine's exported records, organized as rolling, versioned indices.
//
// Implementations live in subpackages:
//   - source/mongo: every index is a MongoDB collection
//   - source/mock: in-memory store for tests and dry runs
//
// Index names follow the layout <prefix>_<alias>_<engineVersion>_<suffix>,
// for example "zeebe-record_job_8.3.0_2024-05-01".
package source
