package storage

import (
	"testing"
	"time"

	"github.com/poiesic/importer/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportPositionRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	pos := &core.ImportPosition{
		PartitionID: 3,
		ValueType:   core.ValueTypeVariable,
		Position:    9_007_199_254_740_993,
		Sequence:    2_251_799_813_685_249,
		IndexName:   "zeebe-record_variable_8.3.0_2024-05-01",
		Completed:   true,
		UpdatedAt:   now,
	}

	decoded, err := UnmarshalImportPosition(MarshalImportPosition(pos))
	require.NoError(t, err)
	assert.Equal(t, pos, decoded)
}

func TestImportPositionZeroTime(t *testing.T) {
	pos := &core.ImportPosition{PartitionID: 1, ValueType: core.ValueTypeJob}

	decoded, err := UnmarshalImportPosition(MarshalImportPosition(pos))
	require.NoError(t, err)
	assert.True(t, decoded.UpdatedAt.IsZero(), "zero time should survive the round trip")
}

func TestUnmarshalImportPosition_Invalid(t *testing.T) {
	data := MarshalImportPosition(&core.ImportPosition{
		PartitionID: 1,
		ValueType:   core.ValueTypeJob,
		IndexName:   "zeebe-record_job_8.2.0_2024-01-01",
	})

	_, err := UnmarshalImportPosition(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalImportPosition([]byte{})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
