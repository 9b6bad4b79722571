package ingestion

import (
	"log/slog"

	"github.com/poiesic/importer/core"
)

// Listener observes import outcomes. Calls are synchronous on the worker
// running the job; implementations must return quickly.
type Listener interface {
	// OnBatchFinished is called once per imported sub-batch, in order, after
	// the stream's position was committed.
	OnBatchFinished(batch *core.ImportBatch)

	// OnBatchFailed is called once for a page that failed to import.
	OnBatchFailed(batch *core.ImportBatch, err error)
}

// ListenerFuncs adapts functions to Listener. Nil fields are ignored.
type ListenerFuncs struct {
	Finished func(batch *core.ImportBatch)
	Failed   func(batch *core.ImportBatch, err error)
}

// OnBatchFinished implements Listener.
func (f ListenerFuncs) OnBatchFinished(batch *core.ImportBatch) {
	if f.Finished != nil {
		f.Finished(batch)
	}
}

// OnBatchFailed implements Listener.
func (f ListenerFuncs) OnBatchFailed(batch *core.ImportBatch, err error) {
	if f.Failed != nil {
		f.Failed(batch, err)
	}
}

// Listeners fans notifications out to a fixed list of listeners. A panic in
// one listener is logged and does not reach the job or the other listeners.
type Listeners struct {
	listeners []Listener
	logger    *slog.Logger
}

var _ Listener = (*Listeners)(nil)

// NewListeners creates a fan-out over listeners. Nil entries are dropped.
func NewListeners(logger *slog.Logger, listeners ...Listener) *Listeners {
	if logger == nil {
		logger = slog.Default()
	}
	kept := make([]Listener, 0, len(listeners))
	for _, l := range listeners {
		if l != nil {
			kept = append(kept, l)
		}
	}
	return &Listeners{listeners: kept, logger: logger}
}

// Len returns the number of listeners.
func (l *Listeners) Len() int {
	return len(l.listeners)
}

// OnBatchFinished implements Listener.
func (l *Listeners) OnBatchFinished(batch *core.ImportBatch) {
	for _, listener := range l.listeners {
		l.call(batch, func() { listener.OnBatchFinished(batch) })
	}
}

// OnBatchFailed implements Listener.
func (l *Listeners) OnBatchFailed(batch *core.ImportBatch, err error) {
	for _, listener := range l.listeners {
		l.call(batch, func() { listener.OnBatchFailed(batch, err) })
	}
}

func (l *Listeners) call(batch *core.ImportBatch, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("listener panicked", "batch", batch.ID, "stream", batch.Key().String(), "panic", r)
		}
	}()
	fn()
}
