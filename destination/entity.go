package destination

import (
	"context"
	"fmt"
	"time"
)

// Kind names the type of a destination entity.
type Kind string

const (
	KindProcessInstance Kind = "process-instance"
	KindJob             Kind = "job"
	KindIncident        Kind = "incident"
	KindVariable        Kind = "variable"
)

// Entity is the denormalized, queryable form of one engine object.
// Entities are keyed by (Kind, ID); Position is the source position of the
// record the entity was last derived from.
type Entity struct {
	Kind               Kind
	ID                 string
	Key                int64
	PartitionID        int
	Position           int64
	ProcessInstanceKey int64
	BpmnProcessID      string
	State              string
	TenantID           string
	Attributes         map[string]any
	UpdatedAt          time.Time
}

// Validate checks the fields a writer relies on.
func (e *Entity) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: entity is nil", ErrInvalidEntity)
	}
	if e.Kind == "" {
		return fmt.Errorf("%w: kind is empty", ErrInvalidEntity)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidEntity)
	}
	if e.Position < 0 {
		return fmt.Errorf("%w: negative position %d", ErrInvalidEntity, e.Position)
	}
	return nil
}

// Writer persists entities. Write must be atomic per call and idempotent.
type Writer interface {
	Write(ctx context.Context, entities ...*Entity) error
	Close() error
}

// Compact keeps only the entity with the highest position for each (Kind, ID),
// preserving the order of first appearance. Bulk writers use it so a single
// statement never touches the same row twice.
func Compact(entities []*Entity) []*Entity {
	type key struct {
		kind Kind
		id   string
	}
	index := make(map[key]int, len(entities))
	out := make([]*Entity, 0, len(entities))
	for _, e := range entities {
		k := key{e.Kind, e.ID}
		if i, ok := index[k]; ok {
			if e.Position >= out[i].Position {
				out[i] = e
			}
			continue
		}
		index[k] = len(out)
		out = append(out, e)
	}
	return out
}
