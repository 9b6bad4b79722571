package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/storage"
	"github.com/poiesic/importer/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobStream = core.StreamKey{PartitionID: 1, ValueType: core.ValueTypeJob}

func setupRepo(t *testing.T) storage.PositionRepository {
	t.Helper()
	repo, backend, err := badger.NewMemoryPositionRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

func setupStore(t *testing.T, repo storage.PositionRepository, interval time.Duration) *PositionStore {
	t.Helper()
	store, err := NewPositionStore(repo, interval, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })
	return store
}

func TestPositionStore_LoadMissingStartsAtZero(t *testing.T) {
	store := setupStore(t, setupRepo(t), 0)

	pos, err := store.Load(context.Background(), jobStream)
	require.NoError(t, err)
	assert.Equal(t, jobStream, pos.Key())
	assert.Zero(t, pos.Position)
}

func TestPositionStore_WriteThrough(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	store := setupStore(t, repo, 0)

	_, err := store.Load(ctx, jobStream)
	require.NoError(t, err)
	require.NoError(t, store.MarkLoaded(ctx, core.ImportPosition{
		PartitionID: 1, ValueType: core.ValueTypeJob, Position: 103, IndexName: "b",
	}))

	stored, err := repo.LoadPosition(ctx, 1, core.ValueTypeJob)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(103), stored.Position)
	assert.Equal(t, "b", stored.IndexName)
}

func TestPositionStore_ScheduledVersusLoaded(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	store := setupStore(t, repo, 0)

	_, err := store.Load(ctx, jobStream)
	require.NoError(t, err)

	store.MarkScheduled(core.ImportPosition{PartitionID: 1, ValueType: core.ValueTypeJob, Position: 200})
	scheduled, ok := store.Scheduled(jobStream)
	require.True(t, ok)
	assert.Equal(t, int64(200), scheduled.Position)

	// Nothing scheduled is ever persisted
	stored, err := repo.LoadPosition(ctx, 1, core.ValueTypeJob)
	require.NoError(t, err)
	assert.Nil(t, stored)

	store.ResetScheduled(jobStream)
	scheduled, _ = store.Scheduled(jobStream)
	assert.Zero(t, scheduled.Position)
}

func TestPositionStore_Monotonic(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t, setupRepo(t), 0)

	outcomes := []int64{10, 50, 20, 50, 70, 5}
	var last int64
	for _, p := range outcomes {
		require.NoError(t, store.MarkLoaded(ctx, core.ImportPosition{
			PartitionID: 1, ValueType: core.ValueTypeJob, Position: p,
		}))
		loaded, ok := store.Loaded(jobStream)
		require.True(t, ok)
		assert.GreaterOrEqual(t, loaded.Position, last)
		last = loaded.Position
	}
	assert.Equal(t, int64(70), last)
}

func TestPositionStore_PeriodicFlushAndClose(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	store, err := NewPositionStore(repo, time.Hour, nil)
	require.NoError(t, err)

	require.NoError(t, store.MarkLoaded(ctx, core.ImportPosition{
		PartitionID: 1, ValueType: core.ValueTypeJob, Position: 42,
	}))

	stored, err := repo.LoadPosition(ctx, 1, core.ValueTypeJob)
	require.NoError(t, err)
	assert.Nil(t, stored, "not flushed yet")

	require.NoError(t, store.Close(ctx))

	stored, err = repo.LoadPosition(ctx, 1, core.ValueTypeJob)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(42), stored.Position)

	// Closing again is harmless
	require.NoError(t, store.Close(ctx))
}

func TestPositionStore_FlusherRuns(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	store := setupStore(t, repo, 10*time.Millisecond)

	require.NoError(t, store.MarkLoaded(ctx, core.ImportPosition{
		PartitionID: 2, ValueType: core.ValueTypeIncident, Position: 9,
	}))

	require.Eventually(t, func() bool {
		stored, err := repo.LoadPosition(ctx, 2, core.ValueTypeIncident)
		return err == nil && stored != nil && stored.Position == 9
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPositionStore_MarkCompleted(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	store := setupStore(t, repo, 0)

	// Nothing imported yet: no row is created
	_, err := store.Load(ctx, jobStream)
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted(ctx, jobStream))
	stored, err := repo.LoadPosition(ctx, 1, core.ValueTypeJob)
	require.NoError(t, err)
	assert.Nil(t, stored)

	require.NoError(t, store.MarkLoaded(ctx, core.ImportPosition{
		PartitionID: 1, ValueType: core.ValueTypeJob, Position: 5,
	}))
	require.NoError(t, store.MarkCompleted(ctx, jobStream))

	stored, err = repo.LoadPosition(ctx, 1, core.ValueTypeJob)
	require.NoError(t, err)
	assert.True(t, stored.Completed)
	assert.Equal(t, int64(5), stored.Position)
}

func TestPositionStore_Forget(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	store := setupStore(t, repo, 0)

	require.NoError(t, store.MarkLoaded(ctx, core.ImportPosition{
		PartitionID: 1, ValueType: core.ValueTypeJob, Position: 5,
	}))
	_, err := repo.DeletePositions(ctx, core.ValueTypeJob)
	require.NoError(t, err)

	store.Forget(core.ValueTypeJob)
	pos, err := store.Load(ctx, jobStream)
	require.NoError(t, err)
	assert.Zero(t, pos.Position)
}

func TestNewPositionStore_Validation(t *testing.T) {
	_, err := NewPositionStore(nil, 0, nil)
	assert.ErrorIs(t, err, ErrPositionRepositoryRequired)

	_, err = NewPositionStore(setupRepo(t), -time.Second, nil)
	assert.Error(t, err)
}
