package mongo

import (
	"testing"

	"github.com/poiesic/importer/source"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestFilterDocument(t *testing.T) {
	pos := filterDocument(source.PositionAfter(3, 100))
	assert.Equal(t, bson.M{"partitionId": 3, "position": bson.M{"$gt": int64(100)}}, pos)

	seq := filterDocument(source.SequenceRange(10, 60))
	assert.Equal(t, bson.M{"sequence": bson.M{"$gt": int64(10), "$lte": int64(60)}}, seq)
}

func TestNormalizeMap(t *testing.T) {
	in := map[string]any{
		"key":     int64(5),
		"headers": bson.M{"a": "b"},
		"ordered": bson.D{{Key: "x", Value: int32(1)}},
		"list":    bson.A{bson.M{"n": 1}, "s"},
	}

	out := normalizeMap(in)
	assert.Equal(t, int64(5), out["key"])
	assert.Equal(t, map[string]any{"a": "b"}, out["headers"])
	assert.Equal(t, map[string]any{"x": int32(1)}, out["ordered"])
	assert.Equal(t, []any{map[string]any{"n": 1}, "s"}, out["list"])
	assert.Nil(t, normalizeMap(nil))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "db")
	assert.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	opts := ClientOptions("mongodb://localhost:27017")
	if assert.NotNil(t, opts.BSONOptions) {
		assert.True(t, opts.BSONOptions.DefaultDocumentM)
	}
}
