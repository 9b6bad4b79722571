// Package mongo implements destination.Writer on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/importer/destination"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection is the collection entities are written to.
const DefaultCollection = "entities"

// Writer upserts entities into one collection, keyed by "<kind>/<id>".
type Writer struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

var _ destination.Writer = (*Writer)(nil)

// New creates a writer on the given database and collection.
// The caller keeps ownership of the client.
func New(client *mongo.Client, database, collection string, logger *slog.Logger) (*Writer, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	if database == "" {
		return nil, errors.New("database name cannot be empty")
	}
	if collection == "" {
		collection = DefaultCollection
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		coll:   client.Database(database).Collection(collection),
		logger: logger.With("component", "mongo-destination", "collection", collection),
	}, nil
}

// Write performs one unordered bulk upsert. An entity whose stored position is
// newer than the incoming one is left untouched.
func (w *Writer) Write(ctx context.Context, entities ...*destination.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	models := upsertModels(destination.Compact(entities))
	res, err := w.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil && !onlyDuplicateKeys(err) {
		return fmt.Errorf("bulk write: %w", err)
	}
	if res != nil {
		w.logger.Debug("bulk write",
			"matched", res.MatchedCount, "modified", res.ModifiedCount, "upserted", res.UpsertedCount)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (w *Writer) Close() error {
	return nil
}

func documentID(e *destination.Entity) string {
	return string(e.Kind) + "/" + e.ID
}

func upsertModels(entities []*destination.Entity) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, len(entities))
	for _, e := range entities {
		updatedAt := e.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		filter := bson.M{
			"_id":      documentID(e),
			"position": bson.M{"$lte": e.Position},
		}
		update := bson.M{"$set": bson.M{
			"kind":               string(e.Kind),
			"entityId":           e.ID,
			"key":                e.Key,
			"partitionId":        e.PartitionID,
			"position":           e.Position,
			"processInstanceKey": e.ProcessInstanceKey,
			"bpmnProcessId":      e.BpmnProcessID,
			"state":              e.State,
			"tenantId":           e.TenantID,
			"attributes":         e.Attributes,
			"updatedAt":          updatedAt,
		}}
		models = append(models, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true))
	}
	return models
}

// onlyDuplicateKeys reports whether every write error is a duplicate key.
// Such errors come from upserts whose stored document has a newer position:
// the filter misses, the upsert tries to insert the same _id and fails.
func onlyDuplicateKeys(err error) bool {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return false
	}
	if bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != 11000 {
			return false
		}
	}
	return true
}
