package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/destination"
)

// EntityProcessor decodes a sub-batch with a version specific Decoder and
// writes the resulting entities in one call.
type EntityProcessor struct {
	decoder Decoder
	writer  destination.Writer
	logger  *slog.Logger
}

var _ Processor = (*EntityProcessor)(nil)

// NewEntityProcessor creates an EntityProcessor.
func NewEntityProcessor(decoder Decoder, writer destination.Writer, logger *slog.Logger) *EntityProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityProcessor{
		decoder: decoder,
		writer:  writer,
		logger:  logger,
	}
}

// Process implements Processor. Records other than EVENTs are skipped. Any
// decode error fails the whole sub-batch before anything is written.
func (p *EntityProcessor) Process(ctx context.Context, batch *core.ImportBatch) error {
	entities := make([]*destination.Entity, 0, len(batch.Records))
	skipped := 0
	for _, rec := range batch.Records {
		if rec.RecordType != core.RecordTypeEvent {
			skipped++
			continue
		}
		e, err := p.decoder.Decode(rec)
		if err != nil {
			return fmt.Errorf("decode record at position %d of %s: %w", rec.Position, rec.IndexName, err)
		}
		if e == nil {
			skipped++
			continue
		}
		entities = append(entities, e)
	}

	if err := p.writer.Write(ctx, entities...); err != nil {
		return fmt.Errorf("write entities: %w", err)
	}

	p.logger.Debug("processed sub-batch",
		"stream", batch.Key().String(), "index", batch.LastIndexName,
		"entities", len(entities), "skipped", skipped)
	return nil
}

// tenantVersions are the engine versions whose payloads carry a tenantId.
var tenantVersions = []string{"8.3", "8.4", "8.5", "8.6", "8.7"}

// DefaultRegistry builds the registry of built-in processors writing to w.
func DefaultRegistry(w destination.Writer, logger *slog.Logger) (*Registry, error) {
	processors := map[string]Processor{
		LegacyVersion: NewEntityProcessor(LegacyDecoder{}, w, logger),
	}
	tenant := NewEntityProcessor(TenantDecoder{}, w, logger)
	for _, v := range tenantVersions {
		processors[v] = tenant
	}
	return NewRegistry(processors)
}
