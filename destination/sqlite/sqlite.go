// Package sqlite implements destination.Writer on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"github.com/poiesic/importer/destination"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	kind TEXT NOT NULL,
	id TEXT NOT NULL,
	entity_key INTEGER NOT NULL,
	partition_id INTEGER NOT NULL,
	position INTEGER NOT NULL,
	process_instance_key INTEGER NOT NULL,
	bpmn_process_id TEXT NOT NULL,
	state TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	attributes TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS entities_process_instance ON entities (process_instance_key);
`

// Rows derived from an older position never overwrite newer ones.
const upsert = `
INSERT INTO entities (kind, id, entity_key, partition_id, position, process_instance_key,
	bpmn_process_id, state, tenant_id, attributes, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(kind, id) DO UPDATE SET
	entity_key = excluded.entity_key,
	partition_id = excluded.partition_id,
	position = excluded.position,
	process_instance_key = excluded.process_instance_key,
	bpmn_process_id = excluded.bpmn_process_id,
	state = excluded.state,
	tenant_id = excluded.tenant_id,
	attributes = excluded.attributes,
	updated_at = excluded.updated_at
WHERE excluded.position >= entities.position
`

// Writer stores entities in a single SQLite table.
type Writer struct {
	db     *sql.DB
	logger *slog.Logger
	closed atomic.Bool
}

var _ destination.Writer = (*Writer)(nil)

// Open opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for a private in-memory database.
func Open(path string, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("error opening SQLite database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating schema: %w", err)
	}

	return &Writer{
		db:     db,
		logger: logger.With("component", "sqlite-destination"),
	}, nil
}

// Write upserts entities in one transaction.
func (w *Writer) Write(ctx context.Context, entities ...*destination.Entity) error {
	if w.closed.Load() {
		return destination.ErrWriterClosed
	}
	if len(entities) == 0 {
		return nil
	}
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range destination.Compact(entities) {
		attrs, err := json.Marshal(e.Attributes)
		if err != nil {
			return fmt.Errorf("marshal attributes of %s/%s: %w", e.Kind, e.ID, err)
		}
		updatedAt := e.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		_, err = stmt.ExecContext(ctx,
			string(e.Kind), e.ID, e.Key, e.PartitionID, e.Position, e.ProcessInstanceKey,
			e.BpmnProcessID, e.State, e.TenantID, string(attrs), updatedAt.UnixMicro())
		if err != nil {
			return fmt.Errorf("upsert %s/%s: %w", e.Kind, e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	w.logger.Debug("wrote entities", "count", len(entities))
	return nil
}

// Get returns a stored entity.
func (w *Writer) Get(ctx context.Context, kind destination.Kind, id string) (*destination.Entity, error) {
	if w.closed.Load() {
		return nil, destination.ErrWriterClosed
	}

	var (
		e         destination.Entity
		kindStr   string
		attrs     string
		updatedAt int64
	)
	err := w.db.QueryRowContext(ctx, `
		SELECT kind, id, entity_key, partition_id, position, process_instance_key,
			bpmn_process_id, state, tenant_id, attributes, updated_at
		FROM entities WHERE kind = ? AND id = ?`, string(kind), id).
		Scan(&kindStr, &e.ID, &e.Key, &e.PartitionID, &e.Position, &e.ProcessInstanceKey,
			&e.BpmnProcessID, &e.State, &e.TenantID, &attrs, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", destination.ErrNotFound, kind, id)
		}
		return nil, err
	}

	e.Kind = destination.Kind(kindStr)
	e.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
		return nil, fmt.Errorf("unmarshal attributes of %s/%s: %w", kind, id, err)
	}
	return &e, nil
}

// Count returns the number of stored entities of a kind, or of all kinds when kind is empty.
func (w *Writer) Count(ctx context.Context, kind destination.Kind) (int64, error) {
	if w.closed.Load() {
		return 0, destination.ErrWriterClosed
	}

	var n int64
	var err error
	if kind == "" {
		err = w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n)
	} else {
		err = w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE kind = ?`, string(kind)).Scan(&n)
	}
	return n, err
}

// Close closes the database.
func (w *Writer) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	return w.db.Close()
}
