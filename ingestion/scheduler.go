package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/fetcher"
	"github.com/poiesic/importer/source"
)

// Scheduler drives one reader per stream and runs their jobs on a bounded
// worker pool.
type Scheduler struct {
	src       source.Source
	registry  resolver
	positions *PositionStore
	streams   []core.StreamKey

	pool             *ants.Pool
	poolSize         int
	queue            chan struct{}
	queueSize        int
	backoff          time.Duration
	maxBackoff       time.Duration
	fetcherConfig    fetcher.Config
	stopWhenCaughtUp bool
	listeners        []Listener
	fanout           *Listeners
	logger           *slog.Logger

	mu      sync.Mutex
	readers map[core.StreamKey]*reader
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler) error

// WithPoolSize sets the number of workers running jobs.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(s *Scheduler) error {
		if size < 1 {
			size = 1
		}
		s.poolSize = size
		return nil
	}
}

// WithQueueSize sets how many pages may be queued or running at once.
// Readers block when the queue is full. Default is twice the pool size.
func WithQueueSize(size int) Option {
	return func(s *Scheduler) error {
		if size < 1 {
			return fmt.Errorf("queue size must be at least 1, got %d", size)
		}
		s.queueSize = size
		return nil
	}
}

// WithBackoff sets the initial and maximum per-stream backoff after an
// empty page or a failure. Default is 1s doubling up to 30s.
func WithBackoff(initial, maximum time.Duration) Option {
	return func(s *Scheduler) error {
		if initial <= 0 {
			return fmt.Errorf("backoff must be positive, got %s", initial)
		}
		if maximum < initial {
			maximum = initial
		}
		s.backoff = initial
		s.maxBackoff = maximum
		return nil
	}
}

// WithFetcherConfig sets the configuration of every stream's fetcher.
func WithFetcherConfig(config fetcher.Config) Option {
	return func(s *Scheduler) error {
		if err := config.Validate(); err != nil {
			return err
		}
		s.fetcherConfig = config
		return nil
	}
}

// WithListener adds a listener notified of every job outcome.
func WithListener(listener Listener) Option {
	return func(s *Scheduler) error {
		s.listeners = append(s.listeners, listener)
		return nil
	}
}

// WithStopWhenCaughtUp makes each reader exit once its stream is caught up.
// The scheduler's Done channel closes when every reader has exited.
func WithStopWhenCaughtUp() Option {
	return func(s *Scheduler) error {
		s.stopWhenCaughtUp = true
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewScheduler creates a scheduler for the given streams.
func NewScheduler(
	src source.Source,
	registry resolver,
	positions *PositionStore,
	streams []core.StreamKey,
	opts ...Option,
) (*Scheduler, error) {
	if src == nil {
		return nil, ErrSourceRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if positions == nil {
		return nil, ErrPositionRepositoryRequired
	}
	if len(streams) == 0 {
		return nil, ErrNoStreams
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	s := &Scheduler{
		src:           src,
		registry:      registry,
		positions:     positions,
		poolSize:      poolSize,
		backoff:       time.Second,
		maxBackoff:    30 * time.Second,
		fetcherConfig: fetcher.DefaultConfig(),
		logger:        slog.Default(),
		readers:       make(map[core.StreamKey]*reader),
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.queueSize == 0 {
		s.queueSize = 2 * s.poolSize
	}
	s.logger = s.logger.With("component", "scheduler")
	s.fanout = NewListeners(s.logger, s.listeners...)

	seen := make(map[core.StreamKey]bool, len(streams))
	for _, key := range streams {
		if seen[key] {
			continue
		}
		seen[key] = true
		f, err := fetcher.New(src, key, s.fetcherConfig, s.logger)
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", key, err)
		}
		s.streams = append(s.streams, key)
		s.readers[key] = &reader{
			key:     key,
			fetcher: f,
			job:     NewJob(f, registry, positions, s.fanout, s.logger),
			status:  StreamStatus{Key: key, State: StateIdle},
		}
	}

	pool, err := ants.NewPool(s.poolSize,
		ants.WithLogger(&antsLoggerAdapter{logger: s.logger}),
		ants.WithPanicHandler(func(r any) {
			s.logger.Error("worker panicked", "panic", r)
		}))
	if err != nil {
		return nil, err
	}
	s.pool = pool
	s.queue = make(chan struct{}, s.queueSize)

	return s, nil
}

// Start launches one reader per stream. Readers stop when ctx is cancelled
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	if s.started {
		return ErrSchedulerStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, key := range s.streams {
		r := s.readers[key]
		s.wg.Add(1)
		go s.runReader(ctx, r)
	}
	go func() {
		s.wg.Wait()
		close(s.done)
	}()

	s.logger.Info("scheduler started",
		"streams", len(s.streams), "workers", s.poolSize, "queue", s.queueSize)
	return nil
}

// Done is closed once every reader has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Stop stops fetching, waits for in-flight jobs, flushes positions and
// releases the worker pool. It is safe to call more than once.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	cancel := s.cancel
	s.mu.Unlock()

	if started {
		cancel()
		s.wg.Wait()
	}

	flushErr := s.positions.Flush(ctx)
	if flushErr != nil {
		s.logger.Error("final position flush failed", "error", flushErr)
	}

	releaseTimeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		releaseTimeout = time.Until(deadline)
	}
	if err := s.pool.ReleaseTimeout(releaseTimeout); err != nil {
		s.logger.Warn("worker pool release timed out", "error", err)
	}

	s.logger.Info("scheduler stopped")
	return flushErr
}

// Run starts the scheduler and blocks until ctx is cancelled or, in
// stop-when-caught-up mode, every stream is caught up. It then stops.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-s.done:
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	return s.Stop(stopCtx)
}

// Status returns a snapshot of every stream, in stream order.
func (s *Scheduler) Status() []StreamStatus {
	out := make([]StreamStatus, 0, len(s.streams))
	for _, key := range s.streams {
		out = append(out, s.readers[key].snapshot())
	}
	return out
}

// Streams returns the streams the scheduler reads.
func (s *Scheduler) Streams() []core.StreamKey {
	out := make([]core.StreamKey, len(s.streams))
	copy(out, s.streams)
	return out
}

type jobResult struct {
	position core.ImportPosition
	ok       bool
}

func (s *Scheduler) runReader(ctx context.Context, r *reader) {
	defer s.wg.Done()
	defer r.setState(StateStopped)
	logger := s.logger.With("stream", r.key.String())

	backoff := s.backoff
	var previous core.ImportPosition
	for {
		var err error
		previous, err = s.positions.Load(ctx, r.key)
		if err == nil {
			break
		}
		logger.Error("loading position failed", "error", err)
		r.recordFailure(err)
		if !s.sleep(ctx, r, backoff) {
			return
		}
		backoff = s.grow(backoff)
	}
	r.setPosition(previous)
	state := core.FetchStateFrom(&previous, 0)
	backoff = s.backoff

	for ctx.Err() == nil {
		r.setState(StateFetching)
		page, next, err := r.fetcher.Fetch(ctx, state)
		state = next
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.recordFailure(err)
			if !s.sleep(ctx, r, backoff) {
				return
			}
			backoff = s.grow(backoff)
			continue
		}

		if len(page.Records) == 0 {
			r.setCaughtUp(page.CaughtUp)
			if page.CaughtUp {
				if err := s.positions.MarkCompleted(ctx, r.key); err != nil {
					logger.Warn("marking stream completed failed", "error", err)
				}
				if s.stopWhenCaughtUp {
					logger.Info("stream caught up", "position", previous.Position)
					return
				}
			}
			if !s.sleep(ctx, r, backoff) {
				return
			}
			backoff = s.grow(backoff)
			continue
		}

		batch := page.Batch(uuid.NewString(), r.key)
		last := batch.Last()
		s.positions.MarkScheduled(core.ImportPosition{
			PartitionID: r.key.PartitionID,
			ValueType:   r.key.ValueType,
			Position:    last.Position,
			Sequence:    last.Sequence,
			IndexName:   last.IndexName,
		})
		r.setCaughtUp(false)

		result, dispatched := s.dispatch(ctx, r, batch, previous)
		if !dispatched {
			s.positions.ResetScheduled(r.key)
			return
		}
		if !result.ok {
			s.positions.ResetScheduled(r.key)
			r.recordFailure(fmt.Errorf("batch %s failed", batch.ID))
			if !s.sleep(ctx, r, backoff) {
				return
			}
			backoff = s.grow(backoff)
			continue
		}

		previous = result.position
		r.recordSuccess(previous, batch.Len())
		state.Position = previous.Position
		state.Sequence = previous.Sequence
		state.ForcePositionQuery = false
		if previous.Sequence > 0 {
			state.HasSeenSequence = true
		}
		backoff = s.backoff

		if !page.Full() && !s.sleep(ctx, r, s.backoff) {
			return
		}
	}
}

// dispatch queues the job and waits for it. It returns false when the
// scheduler stopped before the job could be queued. Once queued, the job
// runs to completion even if ctx is cancelled.
func (s *Scheduler) dispatch(ctx context.Context, r *reader, batch *core.ImportBatch, previous core.ImportPosition) (jobResult, bool) {
	r.setState(StateQueued)
	select {
	case s.queue <- struct{}{}:
	case <-ctx.Done():
		return jobResult{}, false
	}
	r.setState(StateDispatched)

	jobCtx := context.WithoutCancel(ctx)
	results := make(chan jobResult, 1)
	err := s.pool.Submit(func() {
		defer func() { <-s.queue }()
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("job panicked", "batch", batch.ID, "stream", r.key.String(), "panic", p)
				results <- jobResult{position: previous}
			}
		}()
		pos, ok := r.job.Run(jobCtx, batch, previous)
		results <- jobResult{position: pos, ok: ok}
	})
	if err != nil {
		<-s.queue
		s.logger.Error("submitting job failed", "batch", batch.ID, "error", err)
		return jobResult{position: previous}, true
	}
	return <-results, true
}

func (s *Scheduler) sleep(ctx context.Context, r *reader, d time.Duration) bool {
	r.setBackoff(d)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Scheduler) grow(d time.Duration) time.Duration {
	return min(d*2, s.maxBackoff)
}

// antsLoggerAdapter adapts slog.Logger to ants.Logger.
type antsLoggerAdapter struct {
	logger *slog.Logger
}

func (a *antsLoggerAdapter) Printf(format string, args ...any) {
	a.logger.Info(fmt.Sprintf(format, args...))
}
