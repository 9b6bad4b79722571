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


// Package destination defines the write side of the importer: the secondary
// store holding one row per logical entity derived from engine records.
//
// Writers must be idempotent. Records are delivered at least once, so the
// same entity may be written repeatedly, and a write must never replace a
// stored entity that was derived from a newer position.
package destination
