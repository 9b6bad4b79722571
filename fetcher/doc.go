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


// Package fetcher reads ordered pages of records for one import stream.
//
// A stream is one (partition, value type) pair. Pages are selected with one
// of two queries: a position query (partitionId == P AND position > X),
// which is complete but coarse, or a sequence query (sequence in (S, S+n]),
// which windows pages tightly but can miss records when sequences have gaps.
// The fetcher switches to sequence queries once a sequence has been seen,
// and falls back to a position query when an existence check finds records
// that a run of empty sequence pages missed.
package fetcher
