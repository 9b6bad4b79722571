package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		index    string
		expected string
	}{
		{"zeebe-record_job_8.3.0_2024-05-01", "8.3"},
		{"zeebe-record_process-instance_8.5.12", "8.5"},
		{"zeebe-record_job_8.2.0-alpha1_2023-01-01", "8.2"},
		{"zeebe-record_job_10.0.1_x", "10.0"},
		{"zeebe-record-job-2022-01-01", LegacyVersion},
		{"zeebe-record_job_latest_2024", LegacyVersion},
		{"zeebe-record_job_8_2024", LegacyVersion},
		{"", LegacyVersion},
	}

	for _, tt := range tests {
		t.Run(tt.index, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractVersion(tt.index))
		})
	}
}
