package backfill

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrNoStreams is returned when the configuration selects no streams
	ErrNoStreams = errors.New("no partitions or value types selected")

	// ErrSchedulerFactoryRequired is returned when no scheduler factory is provided
	ErrSchedulerFactoryRequired = errors.New("scheduler factory required")
)
