package ingestion

import (
	"testing"

	"github.com/poiesic/importer/core"
	"github.com/stretchr/testify/assert"
)

func TestListeners_FanOutSurvivesPanic(t *testing.T) {
	var finished, failed int
	panicking := ListenerFuncs{
		Finished: func(*core.ImportBatch) { panic("boom") },
		Failed:   func(*core.ImportBatch, error) { panic("boom") },
	}
	counting := ListenerFuncs{
		Finished: func(*core.ImportBatch) { finished++ },
		Failed:   func(*core.ImportBatch, error) { failed++ },
	}

	l := NewListeners(nil, panicking, nil, counting)
	assert.Equal(t, 2, l.Len())

	assert.NotPanics(t, func() {
		l.OnBatchFinished(&core.ImportBatch{ID: "1"})
		l.OnBatchFailed(&core.ImportBatch{ID: "2"}, assert.AnError)
	})
	assert.Equal(t, 1, finished)
	assert.Equal(t, 1, failed)
}

func TestListenerFuncs_NilFields(t *testing.T) {
	assert.NotPanics(t, func() {
		ListenerFuncs{}.OnBatchFinished(&core.ImportBatch{})
		ListenerFuncs{}.OnBatchFailed(&core.ImportBatch{}, nil)
	})
}
