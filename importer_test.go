package importer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/destination"
	"github.com/poiesic/importer/destination/sqlite"
	"github.com/poiesic/importer/source/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return NewConfig(
		WithPositionsPath(""),
		WithValueTypes(core.ValueTypeJob),
		WithPoolSize(2),
		WithBatchSizes(2, 4),
		WithFlushInterval(0),
		WithBackoff(time.Millisecond, 5*time.Millisecond),
	)
}

func seedJobs(src *mock.Source, index string, from, to int64) {
	for p := from; p <= to; p++ {
		src.Add(index, &core.Record{
			PartitionID: 1,
			Position:    p,
			Key:         1000 + p,
			RecordType:  core.RecordTypeEvent,
			ValueType:   "JOB",
			Intent:      "CREATED",
			Timestamp:   1714550400000,
			Value:       map[string]any{"type": "payment", "tenantId": "acme"},
		})
	}
}

func openTestImporter(t *testing.T, src *mock.Source) (*Importer, *sqlite.Writer) {
	t.Helper()
	w, err := sqlite.Open(":memory:", nil)
	require.NoError(t, err)
	im, err := New(context.Background(), testConfig(), WithSource(src), WithWriter(w))
	require.NoError(t, err)
	t.Cleanup(func() { im.Close() })
	return im, w
}

func TestNew(t *testing.T) {
	t.Run("opens with injected source and writer", func(t *testing.T) {
		im, _ := openTestImporter(t, mock.New())
		assert.NotNil(t, im.backend)
		assert.NotNil(t, im.registry)
		assert.NotNil(t, im.Metrics())
		assert.NotNil(t, im.Source())
		assert.Equal(t, []int{1}, im.Config().Partitions)
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.PoolSize = 0
		im, err := New(context.Background(), cfg, WithSource(mock.New()))
		assert.Error(t, err)
		assert.Nil(t, im)
	})

	t.Run("mongo destination needs the mongo source", func(t *testing.T) {
		cfg := testConfig()
		cfg.Destination = DestinationMongo
		cfg.DestinationDatabase = "operate"
		src := mock.New()
		im, err := New(context.Background(), cfg, WithSource(src))
		assert.ErrorIs(t, err, ErrMongoDestinationNeedsClient)
		assert.Nil(t, im)
	})

	t.Run("error with invalid positions path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0644))

		cfg := testConfig()
		cfg.PositionsPath = tmpFile
		im, err := New(context.Background(), cfg, WithSource(mock.New()))
		assert.Error(t, err)
		assert.Nil(t, im)
	})
}

func TestImporter_Backfill(t *testing.T) {
	src := mock.New()
	seedJobs(src, "zeebe-record_job_8.2.0_2024-05-01", 1, 4)
	seedJobs(src, "zeebe-record_job_8.5.0_2024-05-02", 5, 7)
	im, w := openTestImporter(t, src)

	var out bytes.Buffer
	b, err := im.NewBackfiller(nil, &out)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, b.Run(ctx))

	count, err := w.Count(ctx, destination.KindJob)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)

	// 8.2 records use the legacy decoder, 8.5 ones carry their tenant
	legacy, err := w.Get(ctx, destination.KindJob, "1001")
	require.NoError(t, err)
	assert.Equal(t, "<default>", legacy.TenantID)
	tenant, err := w.Get(ctx, destination.KindJob, "1007")
	require.NoError(t, err)
	assert.Equal(t, "acme", tenant.TenantID)

	positions, err := im.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(7), positions[0].Position)
	assert.Equal(t, "zeebe-record_job_8.5.0_2024-05-02", positions[0].IndexName)

	snap := im.Metrics().Snapshot()
	assert.Equal(t, int64(7), snap.RecordsImported)
}

func TestImporter_SchedulerAndReset(t *testing.T) {
	ctx := context.Background()
	src := mock.New()
	seedJobs(src, "zeebe-record_job_8.3.0_a", 1, 5)
	im, w := openTestImporter(t, src)

	s, err := im.NewScheduler()
	require.NoError(t, err)
	assert.Equal(t, []core.StreamKey{{PartitionID: 1, ValueType: core.ValueTypeJob}}, s.Streams())

	require.NoError(t, s.Start(ctx))
	require.Eventually(t, func() bool {
		n, err := w.Count(ctx, destination.KindJob)
		return err == nil && n == 5
	}, 5*time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))

	deleted, err := im.ResetPositions(ctx, core.ValueTypeJob)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	positions, err := im.Positions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestImporter_Close(t *testing.T) {
	w, err := sqlite.Open(":memory:", nil)
	require.NoError(t, err)
	im, err := New(context.Background(), testConfig(), WithSource(mock.New()), WithWriter(w))
	require.NoError(t, err)

	assert.NoError(t, im.Close())
}
