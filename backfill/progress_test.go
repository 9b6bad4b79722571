package backfill

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/importer/core"
	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Basic(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Increment(25)
	tracker.Increment(25)
	tracker.Increment(50)

	assert.Greater(t, tracker.Elapsed(), time.Duration(0))
	assert.Equal(t, int64(100), tracker.Current())

	output := buf.String()
	assert.Contains(t, output, "100/100")
	assert.Contains(t, output, "100.0%")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 1)

	tracker.Increment(5)
	tracker.Finish()

	assert.Zero(t, tracker.Current())
	assert.Zero(t, tracker.Elapsed())
	assert.Empty(t, buf.String())
}

func TestProgressTracker_TotalGrows(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 2, 1)

	tracker.Start()
	tracker.Increment(3)

	assert.Contains(t, buf.String(), "3/3")
}

func TestProgressTracker_Listener(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 100)
	tracker.Start()

	batch := &core.ImportBatch{Records: []*core.Record{{Position: 1}, {Position: 2}}}
	tracker.OnBatchFinished(batch)
	tracker.OnBatchFailed(batch, errors.New("write failed"))
	tracker.Finish()

	assert.Equal(t, int64(2), tracker.Current())
	assert.Equal(t, int64(1), tracker.Failures())
	assert.Contains(t, buf.String(), "2/10")
	assert.Contains(t, buf.String(), "1 failed pages")
	assert.Contains(t, buf.String(), "\n")
}
