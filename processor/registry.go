package processor

import (
	"context"
	"fmt"
	"sort"

	"github.com/poiesic/importer/core"
)

// Processor persists one single-index sub-batch.
type Processor interface {
	Process(ctx context.Context, batch *core.ImportBatch) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, batch *core.ImportBatch) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, batch *core.ImportBatch) error {
	return f(ctx, batch)
}

// Registry maps engine versions to processors. It is built once and never
// modified, so it is safe for concurrent use.
type Registry struct {
	processors map[string]Processor
}

// NewRegistry builds a registry from a version map. The map is copied.
// A processor for LegacyVersion is mandatory.
func NewRegistry(processors map[string]Processor) (*Registry, error) {
	copied := make(map[string]Processor, len(processors))
	for version, p := range processors {
		if p == nil {
			return nil, fmt.Errorf("%w: nil processor for version %s", ErrInvalidProcessor, version)
		}
		copied[version] = p
	}
	if _, ok := copied[LegacyVersion]; !ok {
		return nil, ErrNoDefaultProcessor
	}
	return &Registry{processors: copied}, nil
}

// Resolve returns the processor for the version encoded in indexName and the
// version it was registered under.
func (r *Registry) Resolve(indexName string) (Processor, string) {
	version := ExtractVersion(indexName)
	if p, ok := r.processors[version]; ok {
		return p, version
	}
	return r.processors[LegacyVersion], LegacyVersion
}

// Versions returns the registered versions in ascending order.
func (r *Registry) Versions() []string {
	versions := make([]string, 0, len(r.processors))
	for v := range r.processors {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) < 0
	})
	return versions
}

func compareVersions(a, b string) int {
	var amaj, amin, bmaj, bmin int
	fmt.Sscanf(a, "%d.%d", &amaj, &amin)
	fmt.Sscanf(b, "%d.%d", &bmaj, &bmin)
	if amaj != bmaj {
		return amaj - bmaj
	}
	return amin - bmin
}
