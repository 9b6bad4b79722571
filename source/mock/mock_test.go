package mock

import (
	"context"
	"testing"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(partition int, position, sequence int64) *core.Record {
	return &core.Record{PartitionID: partition, Position: position, Sequence: sequence, ValueType: "JOB"}
}

func TestSearch_MergesIndicesInSortOrder(t *testing.T) {
	src := New()
	src.Add("zeebe-record_job_8.2.0_a", rec(1, 101, 1), rec(1, 104, 4))
	src.Add("zeebe-record_job_8.3.0_b", rec(1, 102, 2), rec(1, 103, 3), rec(2, 105, 1))

	records, err := src.Search(context.Background(), source.SearchRequest{
		IndexPattern: "zeebe-record_job_*",
		PartitionID:  1,
		Filter:       source.PositionAfter(1, 100),
		Sort:         source.SortByPosition,
		Size:         3,
	})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(101), records[0].Position)
	assert.Equal(t, int64(102), records[1].Position)
	assert.Equal(t, int64(103), records[2].Position)
	assert.Equal(t, "zeebe-record_job_8.2.0_a", records[0].IndexName)
	assert.Equal(t, "zeebe-record_job_8.3.0_b", records[1].IndexName)
}

func TestSearch_IndexNotFound(t *testing.T) {
	src := New()
	_, err := src.Search(context.Background(), source.SearchRequest{
		IndexPattern: "zeebe-record_job_*",
		PartitionID:  1,
		Filter:       source.PositionAfter(1, 0),
		Size:         10,
	})
	assert.ErrorIs(t, err, source.ErrIndexNotFound)

	_, err = src.Count(context.Background(), "zeebe-record_job_*", source.PositionAfter(1, 0))
	assert.ErrorIs(t, err, source.ErrIndexNotFound)
}

func TestCount(t *testing.T) {
	src := New()
	src.Add("zeebe-record_job_8.3.0_a", rec(1, 101, 1), rec(1, 102, 2), rec(2, 103, 1))

	n, err := src.Count(context.Background(), "zeebe-record_job_*", source.PositionAfter(1, 101))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, src.CountCalls())
}

func TestHideUntilRefresh(t *testing.T) {
	src := New()
	src.HideUntilRefresh = true
	src.Add("zeebe-record_job_8.3.0_a", rec(1, 101, 1))

	req := source.SearchRequest{
		IndexPattern: "zeebe-record_job_*",
		PartitionID:  1,
		Filter:       source.PositionAfter(1, 0),
		Size:         10,
	}
	records, err := src.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, src.Refresh(context.Background(), "zeebe-record_job_*"))
	records, err = src.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, src.RefreshCalls())
	assert.Equal(t, 2, src.SearchCalls())
}

func TestSearchFuncInjectsError(t *testing.T) {
	src := New()
	src.Add("zeebe-record_job_8.3.0_a", rec(1, 101, 1))
	src.SearchFunc = func(ctx context.Context, req source.SearchRequest) error {
		return assert.AnError
	}

	_, err := src.Search(context.Background(), source.SearchRequest{
		IndexPattern: "zeebe-record_job_*",
		PartitionID:  1,
		Filter:       source.PositionAfter(1, 0),
		Size:         10,
	})
	assert.ErrorIs(t, err, assert.AnError)

	last, ok := src.LastRequest()
	require.True(t, ok)
	assert.Equal(t, 1, last.PartitionID)
}

func TestClosed(t *testing.T) {
	src := New()
	src.Add("zeebe-record_job_8.3.0_a", rec(1, 101, 1))
	require.NoError(t, src.Close())

	_, err := src.Count(context.Background(), "zeebe-record_job_*", source.PositionAfter(1, 0))
	assert.ErrorIs(t, err, source.ErrSourceClosed)
}
