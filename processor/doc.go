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


// Package processor turns engine records into destination entities.
//
// The engine changes its record payloads between versions. The version a
// record was written with is encoded in the name of the index it was read
// from, and a Registry maps each version to the Processor that understands
// it. Versions without a registered processor fall back to LegacyVersion.
package processor
