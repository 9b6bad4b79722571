package backfill

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/ingestion"
	"github.com/poiesic/importer/processor"
	"github.com/poiesic/importer/source"
	"github.com/poiesic/importer/source/mock"
	"github.com/poiesic/importer/storage"
	"github.com/poiesic/importer/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	src       *mock.Source
	repo      storage.PositionRepository
	positions *ingestion.PositionStore
	out       bytes.Buffer

	mu   sync.Mutex
	seen []int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, backend, err := badger.NewMemoryPositionRepository()
	require.NoError(t, err)
	positions, err := ingestion.NewPositionStore(repo, 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		positions.Close(context.Background())
		repo.Close()
		backend.Close()
	})
	return &fixture{src: mock.New(), repo: repo, positions: positions}
}

func (f *fixture) seed(index string, from, to int64) {
	for p := from; p <= to; p++ {
		f.src.Add(index, &core.Record{PartitionID: 1, Position: p, ValueType: "JOB", RecordType: core.RecordTypeEvent})
	}
}

func (f *fixture) imported() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.seen...)
}

func (f *fixture) factory(t *testing.T) SchedulerFactory {
	collect := processor.ProcessorFunc(func(ctx context.Context, batch *core.ImportBatch) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, r := range batch.Records {
			f.seen = append(f.seen, r.Position)
		}
		return nil
	})
	registry, err := processor.NewRegistry(map[string]processor.Processor{processor.LegacyVersion: collect})
	require.NoError(t, err)

	return func(streams []core.StreamKey, opts ...ingestion.Option) (*ingestion.Scheduler, error) {
		base := []ingestion.Option{
			ingestion.WithPoolSize(1),
			ingestion.WithBackoff(time.Millisecond, 5*time.Millisecond),
		}
		return ingestion.NewScheduler(f.src, registry, f.positions, streams, append(base, opts...)...)
	}
}

func jobConfig() *Config {
	config := DefaultConfig()
	config.ValueTypes = []core.ValueType{core.ValueTypeJob}
	config.ReportInterval = 5
	config.RetryDelay = time.Millisecond
	return config
}

func span(from, to int64) []int64 {
	var out []int64
	for p := from; p <= to; p++ {
		out = append(out, p)
	}
	return out
}

func TestBackfiller_DrainsBacklog(t *testing.T) {
	f := newFixture(t)
	f.seed("zeebe-record_job_8.2.0_a", 1, 12)

	b, err := NewBackfiller(f.src, f.repo, f.positions, f.factory(t), jobConfig(), &f.out, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, b.Run(ctx))

	assert.Equal(t, span(1, 12), f.imported())
	assert.Contains(t, f.out.String(), "Starting backfill of 12 records across 1 streams")
	assert.Contains(t, f.out.String(), "12/12")
	assert.Contains(t, f.out.String(), "Backfill complete. Imported 12 records")

	stored, err := f.repo.LoadPosition(ctx, 1, core.ValueTypeJob)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(12), stored.Position)
	assert.True(t, stored.Completed)
}

func TestBackfiller_NothingToImport(t *testing.T) {
	f := newFixture(t)
	f.seed("zeebe-record_job_8.2.0_a", 1, 3)
	require.NoError(t, f.repo.SavePositions(context.Background(), &core.ImportPosition{
		PartitionID: 1, ValueType: core.ValueTypeJob, Position: 3,
	}))

	b, err := NewBackfiller(f.src, f.repo, f.positions, f.factory(t), jobConfig(), &f.out, nil)
	require.NoError(t, err)
	require.NoError(t, b.Run(context.Background()))

	assert.Empty(t, f.imported())
	assert.Contains(t, f.out.String(), "Nothing to import")
}

func TestBackfiller_MissingIndicesCountAsEmpty(t *testing.T) {
	f := newFixture(t)

	b, err := NewBackfiller(f.src, f.repo, f.positions, f.factory(t), jobConfig(), &f.out, nil)
	require.NoError(t, err)

	backlog, err := b.Backlog(context.Background(), jobConfig().Streams())
	require.NoError(t, err)
	assert.Zero(t, backlog)
}

func TestBackfiller_ResetReimports(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed("zeebe-record_job_8.2.0_a", 1, 6)
	require.NoError(t, f.repo.SavePositions(ctx, &core.ImportPosition{
		PartitionID: 1, ValueType: core.ValueTypeJob, Position: 6,
	}))
	// Cache the stored position so the reset has to drop it
	_, err := f.positions.Load(ctx, core.StreamKey{PartitionID: 1, ValueType: core.ValueTypeJob})
	require.NoError(t, err)

	config := jobConfig()
	config.Reset = true
	b, err := NewBackfiller(f.src, f.repo, f.positions, f.factory(t), config, &f.out, nil)
	require.NoError(t, err)

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, b.Run(runCtx))

	assert.Equal(t, span(1, 6), f.imported())
}

func TestBackfiller_SourceUnreachable(t *testing.T) {
	f := newFixture(t)
	f.src.CountFunc = func(ctx context.Context, pattern string, filter source.Filter) error {
		return assert.AnError
	}

	config := jobConfig()
	config.MaxRetries = 2
	b, err := NewBackfiller(f.src, f.repo, f.positions, f.factory(t), config, &f.out, nil)
	require.NoError(t, err)

	err = b.Run(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, f.src.CountCalls())
}

func TestNewBackfiller_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := NewBackfiller(nil, f.repo, f.positions, f.factory(t), nil, nil, nil)
	assert.ErrorIs(t, err, ingestion.ErrSourceRequired)

	_, err = NewBackfiller(f.src, nil, f.positions, f.factory(t), nil, nil, nil)
	assert.ErrorIs(t, err, ingestion.ErrPositionRepositoryRequired)

	_, err = NewBackfiller(f.src, f.repo, f.positions, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrSchedulerFactoryRequired)

	config := DefaultConfig()
	config.Partitions = nil
	_, err = NewBackfiller(f.src, f.repo, f.positions, f.factory(t), config, nil, nil)
	assert.ErrorIs(t, err, ErrNoStreams)
}

func TestConfig_Streams(t *testing.T) {
	config := DefaultConfig()
	config.Partitions = []int{1, 2}
	config.ValueTypes = []core.ValueType{core.ValueTypeJob, core.ValueTypeIncident}

	assert.Equal(t, []core.StreamKey{
		{PartitionID: 1, ValueType: core.ValueTypeJob},
		{PartitionID: 1, ValueType: core.ValueTypeIncident},
		{PartitionID: 2, ValueType: core.ValueTypeJob},
		{PartitionID: 2, ValueType: core.ValueTypeIncident},
	}, config.Streams())

	config.ValueTypes = nil
	assert.Len(t, config.Streams(), 2*len(core.AllValueTypes))
}
