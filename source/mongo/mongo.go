// Package mongo implements source.Source on MongoDB. Every index is a
// collection; an index pattern selects collections by name.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/source"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Source reads engine records from MongoDB collections.
type Source struct {
	client     *mongo.Client
	db         *mongo.Database
	logger     *slog.Logger
	ownsClient bool
	timeout    time.Duration
}

var _ source.Source = (*Source)(nil)

// Option configures a Source.
type Option func(*Source) error

// WithLogger sets the logger used by the source.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithQueryTimeout bounds every individual query. Zero disables the bound.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Source) error {
		if d < 0 {
			return fmt.Errorf("query timeout cannot be negative: %s", d)
		}
		s.timeout = d
		return nil
	}
}

// ClientOptions returns the client options used by Connect. Nested documents
// decode as maps so record payloads can be handled without bson types.
func ClientOptions(uri string) *options.ClientOptions {
	return options.Client().
		ApplyURI(uri).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
}

// Connect dials MongoDB, verifies the connection and returns a Source that
// owns the client.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Source, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, ClientOptions(uri))
	if err != nil {
		return nil, fmt.Errorf("error creating MongoDB client: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, fmt.Errorf("error connecting to MongoDB (ping failed): %w", err)
	}

	s, err := New(client, database, opts...)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	s.ownsClient = true
	return s, nil
}

// New wraps an existing client. The caller keeps ownership of the client.
func New(client *mongo.Client, database string, opts ...Option) (*Source, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	if database == "" {
		return nil, errors.New("database name cannot be empty")
	}

	s := &Source{
		client:  client,
		db:      client.Database(database),
		logger:  slog.Default(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "mongo-source", "database", database)
	return s, nil
}

// Search implements source.Source. Each matching collection is queried with
// the same filter and limit; the results are merged by the sort key.
func (s *Source) Search(ctx context.Context, req source.SearchRequest) ([]*core.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	names, err := s.collections(ctx, req.IndexPattern)
	if err != nil {
		return nil, err
	}

	filter := filterDocument(req.Filter)
	filter["partitionId"] = req.PartitionID
	sortField := string(req.Sort)
	if sortField == "" {
		sortField = string(source.SortByPosition)
	}
	findOpts := options.Find().
		SetSort(bson.D{{Key: sortField, Value: 1}}).
		SetLimit(int64(req.Size))

	var records []*core.Record
	for _, name := range names {
		cursor, err := s.db.Collection(name).Find(ctx, filter, findOpts)
		if err != nil {
			return nil, fmt.Errorf("find in %s: %w", name, err)
		}

		var page []*core.Record
		err = cursor.All(ctx, &page)
		if err != nil {
			return nil, fmt.Errorf("decode records from %s: %w", name, err)
		}
		for _, r := range page {
			r.IndexName = name
			r.Value = normalizeMap(r.Value)
		}
		records = append(records, page...)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return req.Sort.SortKey(records[i]) < req.Sort.SortKey(records[j])
	})
	if len(records) > req.Size {
		records = records[:req.Size]
	}

	s.logger.Debug("search", "pattern", req.IndexPattern, "filter", req.Filter.String(),
		"collections", len(names), "records", len(records))
	return records, nil
}

// Count implements source.Source.
func (s *Source) Count(ctx context.Context, indexPattern string, filter source.Filter) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	names, err := s.collections(ctx, indexPattern)
	if err != nil {
		return 0, err
	}

	doc := filterDocument(filter)
	var total int64
	for _, name := range names {
		n, err := s.db.Collection(name).CountDocuments(ctx, doc)
		if err != nil {
			return 0, fmt.Errorf("count in %s: %w", name, err)
		}
		total += n
	}
	return total, nil
}

// Refresh implements source.Source. MongoDB writes are visible to reads as
// soon as they are acknowledged, so there is nothing to do.
func (s *Source) Refresh(ctx context.Context, indexPattern string) error {
	return nil
}

// Client returns the underlying client so other components can share the connection.
func (s *Source) Client() *mongo.Client {
	return s.client
}

// Close disconnects the client if the source created it.
func (s *Source) Close() error {
	if !s.ownsClient {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Insert writes records into the collection named by indexName. Used by the seeder.
func (s *Source) Insert(ctx context.Context, indexName string, records ...*core.Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]interface{}, len(records))
	for i, r := range records {
		docs[i] = r
	}
	_, err := s.db.Collection(indexName).InsertMany(ctx, docs)
	return err
}

// EnsureIndexes creates the query indexes for a collection.
func (s *Source) EnsureIndexes(ctx context.Context, indexName string) error {
	_, err := s.db.Collection(indexName).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "partitionId", Value: 1}, {Key: "position", Value: 1}}},
		{Keys: bson.D{{Key: "partitionId", Value: 1}, {Key: "sequence", Value: 1}}},
	})
	return err
}

func (s *Source) collections(ctx context.Context, pattern string) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{
		"name": bson.M{"$regex": source.PatternRegexp(pattern)},
	})
	if err != nil {
		return nil, fmt.Errorf("list collections for %s: %w", pattern, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s", source.ErrIndexNotFound, pattern)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Source) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout == 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// filterDocument translates a source.Filter into a MongoDB query document.
func filterDocument(f source.Filter) bson.M {
	if f.Kind == source.FilterSequence {
		return bson.M{
			"sequence": bson.M{"$gt": f.After, "$lte": f.UpTo},
		}
	}
	return bson.M{
		"partitionId": f.PartitionID,
		"position":    bson.M{"$gt": f.After},
	}
}

// normalizeMap converts bson map and array types nested in a payload into
// plain Go maps and slices.
func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}
