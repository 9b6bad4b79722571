package source

import (
	"regexp"
	"testing"

	"github.com/poiesic/importer/core"
	"github.com/stretchr/testify/assert"
)

func TestIndexName(t *testing.T) {
	assert.Equal(t, "zeebe-record_job_8.3.0_2024-05-01",
		IndexName(DefaultIndexPrefix, core.ValueTypeJob, "8.3.0", "2024-05-01"))
	assert.Equal(t, "zeebe-record_process-instance_8.2.1",
		IndexName(DefaultIndexPrefix, core.ValueTypeProcessInstance, "8.2.1", ""))
}

func TestIndexPattern(t *testing.T) {
	pattern := IndexPattern(DefaultIndexPrefix, core.ValueTypeJob)
	assert.Equal(t, "zeebe-record_job_*", pattern)

	assert.True(t, MatchPattern(pattern, "zeebe-record_job_8.3.0_2024-05-01"))
	assert.True(t, MatchPattern(pattern, "zeebe-record_job_8.2.0"))
	assert.False(t, MatchPattern(pattern, "zeebe-record_job-batch_8.3.0"))
	assert.False(t, MatchPattern(pattern, "zeebe-record_incident_8.3.0"))
}

func TestPatternRegexp(t *testing.T) {
	re := regexp.MustCompile(PatternRegexp("zeebe-record_job_*"))

	assert.True(t, re.MatchString("zeebe-record_job_8.3.0_2024-05-01"))
	assert.False(t, re.MatchString("zeebe-record_jobs_8.3.0"))
	assert.False(t, re.MatchString("xzeebe-record_job_8.3.0"))

	// Dots in the pattern are literal
	dotted := regexp.MustCompile(PatternRegexp("a.b_*"))
	assert.True(t, dotted.MatchString("a.b_1"))
	assert.False(t, dotted.MatchString("axb_1"))
}

func TestIndexSegment(t *testing.T) {
	name := "zeebe-record_job_8.3.0_2024-05-01"
	assert.Equal(t, "zeebe-record", IndexSegment(name, 0))
	assert.Equal(t, "8.3.0", IndexSegment(name, 2))
	assert.Equal(t, "", IndexSegment(name, 7))
	assert.Equal(t, "", IndexSegment("legacy", 2))
}
