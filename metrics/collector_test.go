package metrics

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/poiesic/importer/core"
	"github.com/stretchr/testify/assert"
)

func batch(vt core.ValueType, n int) *core.ImportBatch {
	b := &core.ImportBatch{ValueType: vt}
	for i := 0; i < n; i++ {
		b.Records = append(b.Records, &core.Record{Position: int64(i + 1)})
	}
	return b
}

func TestCollector_Counts(t *testing.T) {
	c := NewCollector()

	c.OnBatchFinished(batch(core.ValueTypeJob, 3))
	c.OnBatchFinished(batch(core.ValueTypeJob, 2))
	c.OnBatchFinished(batch(core.ValueTypeIncident, 1))
	c.OnBatchFailed(batch(core.ValueTypeJob, 4), errors.New("write timeout"))

	snap := c.Snapshot()
	assert.Equal(t, int64(3), snap.BatchesFinished)
	assert.Equal(t, int64(1), snap.BatchesFailed)
	assert.Equal(t, int64(6), snap.RecordsImported)
	assert.Equal(t, int64(4), snap.RecordsFailed)
	assert.Equal(t, map[string]int64{"JOB": 5, "INCIDENT": 1}, snap.ByValueType)
	assert.Equal(t, "write timeout", snap.LastError)
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.OnBatchFinished(batch(core.ValueTypeVariable, 1))
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, int64(1000), snap.RecordsImported)
	assert.Equal(t, int64(1000), snap.ByValueType["VARIABLE"])
}

func TestSnapshot_LogValue(t *testing.T) {
	c := NewCollector()
	c.OnBatchFinished(batch(core.ValueTypeJob, 2))

	v := c.Snapshot().LogValue()
	assert.Equal(t, slog.KindGroup, v.Kind())

	found := false
	for _, a := range v.Group() {
		if a.Key == "records_imported" {
			found = true
			assert.Equal(t, int64(2), a.Value.Int64())
		}
	}
	assert.True(t, found)
}
