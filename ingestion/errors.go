package ingestion

import "errors"

var (
	// ErrPositionRepositoryRequired is returned when a position repository is not provided.
	ErrPositionRepositoryRequired = errors.New("position repository required")

	// ErrSourceRequired is returned when a source is not provided.
	ErrSourceRequired = errors.New("source required")

	// ErrRegistryRequired is returned when a processor registry is not provided.
	ErrRegistryRequired = errors.New("processor registry required")

	// ErrNoStreams is returned when a scheduler is created without streams.
	ErrNoStreams = errors.New("at least one stream required")

	// ErrSchedulerStarted is returned when Start is called twice.
	ErrSchedulerStarted = errors.New("scheduler already started")

	// ErrSchedulerStopped is returned when a stopped scheduler is used.
	ErrSchedulerStopped = errors.New("scheduler stopped")

	// ErrProcessorPanic wraps a panic raised while processing a sub-batch.
	ErrProcessorPanic = errors.New("processor panicked")
)
