package mongo

import (
	"testing"

	"github.com/poiesic/importer/destination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestUpsertModels(t *testing.T) {
	models := upsertModels([]*destination.Entity{
		{Kind: destination.KindJob, ID: "7", Position: 42, State: "CREATED"},
	})
	require.Len(t, models, 1)

	m, ok := models[0].(*mongo.UpdateOneModel)
	require.True(t, ok)
	assert.Equal(t, bson.M{"_id": "job/7", "position": bson.M{"$lte": int64(42)}}, m.Filter)
	require.NotNil(t, m.Upsert)
	assert.True(t, *m.Upsert)

	set := m.Update.(bson.M)["$set"].(bson.M)
	assert.Equal(t, "CREATED", set["state"])
	assert.Equal(t, int64(42), set["position"])
}

func TestOnlyDuplicateKeys(t *testing.T) {
	dup := mongo.BulkWriteException{WriteErrors: []mongo.BulkWriteError{
		{WriteError: mongo.WriteError{Code: 11000}},
	}}
	assert.True(t, onlyDuplicateKeys(dup))

	mixed := mongo.BulkWriteException{WriteErrors: []mongo.BulkWriteError{
		{WriteError: mongo.WriteError{Code: 11000}},
		{WriteError: mongo.WriteError{Code: 2}},
	}}
	assert.False(t, onlyDuplicateKeys(mixed))

	assert.False(t, onlyDuplicateKeys(assert.AnError))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "db", "", nil)
	assert.Error(t, err)
}
