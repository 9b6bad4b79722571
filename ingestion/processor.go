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


package ingestion

import (
	"context"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/processor"
)

// resolver selects the processor for a sub-batch. *processor.Registry implements it.
type resolver interface {
	// Resolve returns the processor for the engine version encoded in indexName.
	Resolve(indexName string) (processor.Processor, string)
}

// reloader re-reads a page after making fresh source data visible.
// *fetcher.Fetcher implements it.
type reloader interface {
	// Refresh makes recently written data of the stream's indices visible.
	Refresh(ctx context.Context) error

	// Reload re-issues the query a page was fetched with.
	Reload(ctx context.Context, state core.FetchState, mode core.QueryMode) ([]*core.Record, error)
}
