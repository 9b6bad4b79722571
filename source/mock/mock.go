// Package mock provides an in-memory source.Source for tests and dry runs.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/source"
)

// Source is a concurrency-safe in-memory source.Source.
// Records are grouped by index name. The zero value is not usable; call New.
type Source struct {
	mu      sync.Mutex
	indices map[string][]*core.Record
	hidden  map[string][]*core.Record
	closed  bool

	// HideUntilRefresh makes newly added records invisible until Refresh is called.
	HideUntilRefresh bool

	// SearchFunc, CountFunc and RefreshFunc, when set, run before the default
	// behavior. A non-nil error is returned instead of the default result.
	SearchFunc  func(ctx context.Context, req source.SearchRequest) error
	CountFunc   func(ctx context.Context, indexPattern string, filter source.Filter) error
	RefreshFunc func(ctx context.Context, indexPattern string) error

	searchCalls  int
	countCalls   int
	refreshCalls int
	requests     []source.SearchRequest
}

var _ source.Source = (*Source)(nil)

// New creates an empty in-memory source.
func New() *Source {
	return &Source{
		indices: make(map[string][]*core.Record),
		hidden:  make(map[string][]*core.Record),
	}
}

// Add appends records to an index, creating it if necessary.
// The records' IndexName fields are set to indexName.
func (s *Source) Add(indexName string, records ...*core.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		r.IndexName = indexName
	}
	if _, ok := s.indices[indexName]; !ok {
		s.indices[indexName] = nil
	}
	if s.HideUntilRefresh {
		s.hidden[indexName] = append(s.hidden[indexName], records...)
		return
	}
	s.indices[indexName] = append(s.indices[indexName], records...)
}

// Search implements source.Source.
func (s *Source) Search(ctx context.Context, req source.SearchRequest) ([]*core.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.searchCalls++
	s.requests = append(s.requests, req)
	hook := s.SearchFunc
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, req); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, source.ErrSourceClosed
	}

	matched, found := s.collect(req.IndexPattern, func(r *core.Record) bool {
		return r.PartitionID == req.PartitionID && req.Filter.Matches(r)
	})
	if !found {
		return nil, source.ErrIndexNotFound
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return req.Sort.SortKey(matched[i]) < req.Sort.SortKey(matched[j])
	})
	if len(matched) > req.Size {
		matched = matched[:req.Size]
	}
	return matched, nil
}

// Count implements source.Source.
func (s *Source) Count(ctx context.Context, indexPattern string, filter source.Filter) (int64, error) {
	s.mu.Lock()
	s.countCalls++
	hook := s.CountFunc
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, indexPattern, filter); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, source.ErrSourceClosed
	}

	matched, found := s.collect(indexPattern, filter.Matches)
	if !found {
		return 0, source.ErrIndexNotFound
	}
	return int64(len(matched)), nil
}

// Refresh implements source.Source. Hidden records become visible.
func (s *Source) Refresh(ctx context.Context, indexPattern string) error {
	s.mu.Lock()
	s.refreshCalls++
	hook := s.RefreshFunc
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, indexPattern); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, records := range s.hidden {
		if !source.MatchPattern(indexPattern, name) {
			continue
		}
		s.indices[name] = append(s.indices[name], records...)
		delete(s.hidden, name)
	}
	return nil
}

// Close implements source.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SearchCalls returns the number of Search invocations.
func (s *Source) SearchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchCalls
}

// CountCalls returns the number of Count invocations.
func (s *Source) CountCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countCalls
}

// RefreshCalls returns the number of Refresh invocations.
func (s *Source) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// Requests returns a copy of every search request received.
func (s *Source) Requests() []source.SearchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]source.SearchRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest returns the most recent search request.
func (s *Source) LastRequest() (source.SearchRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return source.SearchRequest{}, false
	}
	return s.requests[len(s.requests)-1], true
}

// collect gathers visible records from all indices matching the pattern,
// in index name order. Must be called with s.mu held.
func (s *Source) collect(pattern string, keep func(*core.Record) bool) ([]*core.Record, bool) {
	var names []string
	for name := range s.indices {
		if source.MatchPattern(pattern, name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, false
	}
	sort.Strings(names)

	var out []*core.Record
	for _, name := range names {
		for _, r := range s.indices[name] {
			if keep(r) {
				out = append(out, r)
			}
		}
	}
	return out, true
}
