package ingestion

import (
	"sync"
	"time"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/fetcher"
)

// StreamState is the state of one stream's reader.
type StreamState int

const (
	StateIdle StreamState = iota
	StateFetching
	StateQueued
	StateDispatched
	StateBackoff
	StateStopped
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateFetching:
		return "FETCHING"
	case StateQueued:
		return "QUEUED"
	case StateDispatched:
		return "DISPATCHED"
	case StateBackoff:
		return "BACKOFF"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// StreamStatus is a snapshot of one reader.
type StreamStatus struct {
	Key             core.StreamKey
	State           StreamState
	Position        core.ImportPosition
	Backoff         time.Duration
	CaughtUp        bool
	Batches         int64
	Records         int64
	Failures        int64
	ConsecutiveFail int
	LastError       string
}

type reader struct {
	key     core.StreamKey
	fetcher *fetcher.Fetcher
	job     *Job

	mu     sync.Mutex
	status StreamStatus
}

func (r *reader) snapshot() StreamStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *reader) setState(state StreamState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.State = state
	if state != StateBackoff {
		r.status.Backoff = 0
	}
}

func (r *reader) setBackoff(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.State = StateBackoff
	r.status.Backoff = d
}

func (r *reader) setPosition(pos core.ImportPosition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Position = pos
}

func (r *reader) setCaughtUp(caughtUp bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.CaughtUp = caughtUp
}

func (r *reader) recordSuccess(pos core.ImportPosition, records int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Position = pos
	r.status.Batches++
	r.status.Records += int64(records)
	r.status.ConsecutiveFail = 0
	r.status.State = StateIdle
}

func (r *reader) recordFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Failures++
	r.status.ConsecutiveFail++
	r.status.LastError = err.Error()
}
