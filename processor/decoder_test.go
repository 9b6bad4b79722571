package processor

import (
	"strconv"
	"testing"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/destination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobRecord(value map[string]any) *core.Record {
	return &core.Record{
		PartitionID: 1,
		Position:    101,
		Key:         2251799813685251,
		RecordType:  core.RecordTypeEvent,
		ValueType:   "JOB",
		Intent:      "CREATED",
		Timestamp:   1714550400000,
		Value:       value,
	}
}

func TestDecodeJob(t *testing.T) {
	e, err := LegacyDecoder{}.Decode(jobRecord(map[string]any{
		"type":               "payment",
		"retries":            float64(3),
		"processInstanceKey": int64(2251799813685249),
		"bpmnProcessId":      "order-process",
	}))
	require.NoError(t, err)
	require.NotNil(t, e)

	assert.Equal(t, destination.KindJob, e.Kind)
	assert.Equal(t, "2251799813685251", e.ID)
	assert.Equal(t, int64(101), e.Position)
	assert.Equal(t, 1, e.PartitionID)
	assert.Equal(t, "CREATED", e.State)
	assert.Equal(t, int64(2251799813685249), e.ProcessInstanceKey)
	assert.Equal(t, DefaultTenantID, e.TenantID)
	assert.Equal(t, int64(3), e.Attributes["retries"])
	assert.Equal(t, int64(1714550400000), e.UpdatedAt.UnixMilli())
}

func TestDecodeJob_Malformed(t *testing.T) {
	_, err := LegacyDecoder{}.Decode(jobRecord(map[string]any{"retries": 3}))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = LegacyDecoder{}.Decode(jobRecord(map[string]any{"type": "payment", "retries": "three"}))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = LegacyDecoder{}.Decode(jobRecord(map[string]any{"type": "payment", "retries": 2.5}))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestTenantDecoder(t *testing.T) {
	rec := jobRecord(map[string]any{"type": "payment", "tenantId": "acme"})
	e, err := TenantDecoder{}.Decode(rec)
	require.NoError(t, err)
	assert.Equal(t, "acme", e.TenantID)

	rec = jobRecord(map[string]any{"type": "payment"})
	e, err = TenantDecoder{}.Decode(rec)
	require.NoError(t, err)
	assert.Equal(t, DefaultTenantID, e.TenantID)

	// Legacy payloads ignore tenantId even when present
	rec = jobRecord(map[string]any{"type": "payment", "tenantId": "acme"})
	e, err = LegacyDecoder{}.Decode(rec)
	require.NoError(t, err)
	assert.Equal(t, DefaultTenantID, e.TenantID)

	rec = jobRecord(map[string]any{"type": "payment", "tenantId": 7})
	_, err = TenantDecoder{}.Decode(rec)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDecodeProcessInstance(t *testing.T) {
	rec := &core.Record{
		PartitionID: 2,
		Position:    55,
		RecordType:  core.RecordTypeEvent,
		ValueType:   "PROCESS_INSTANCE",
		Intent:      "ELEMENT_COMPLETED",
		Value: map[string]any{
			"bpmnElementType":    "PROCESS",
			"processInstanceKey": int64(4503599627370497),
			"bpmnProcessId":      "order-process",
			"version":            int32(3),
		},
	}
	e, err := LegacyDecoder{}.Decode(rec)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, destination.KindProcessInstance, e.Kind)
	assert.Equal(t, "4503599627370497", e.ID)
	assert.Equal(t, "COMPLETED", e.State)
	assert.Equal(t, int64(3), e.Attributes["version"])

	rec.Value["bpmnElementType"] = "SERVICE_TASK"
	e, err = LegacyDecoder{}.Decode(rec)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestDecodeIncident(t *testing.T) {
	rec := &core.Record{
		Key:        77,
		Position:   9,
		RecordType: core.RecordTypeEvent,
		ValueType:  "INCIDENT",
		Intent:     "CREATED",
		Value:      map[string]any{"errorType": "JOB_NO_RETRIES", "errorMessage": "boom", "jobKey": 5},
	}
	e, err := LegacyDecoder{}.Decode(rec)
	require.NoError(t, err)
	assert.Equal(t, destination.KindIncident, e.Kind)
	assert.Equal(t, "ACTIVE", e.State)
	assert.Equal(t, "boom", e.Attributes["errorMessage"])
}

func TestDecodeVariable_StableID(t *testing.T) {
	mk := func(key, position int64, value string) *core.Record {
		return &core.Record{
			Key:        key,
			Position:   position,
			RecordType: core.RecordTypeEvent,
			ValueType:  "VARIABLE",
			Intent:     "UPDATED",
			Value:      map[string]any{"name": "orderId", "scopeKey": 100, "value": value},
		}
	}

	first, err := TenantDecoder{}.Decode(mk(1, 10, `"a"`))
	require.NoError(t, err)
	second, err := TenantDecoder{}.Decode(mk(2, 11, `"b"`))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, strconv.FormatUint(uint64(core.IDFromContent("100-orderId")), 10), first.ID)
	assert.Equal(t, `"b"`, second.Attributes["value"])
}

func TestDecode_UnknownValueType(t *testing.T) {
	_, err := LegacyDecoder{}.Decode(&core.Record{RecordType: core.RecordTypeEvent, ValueType: "DEPLOYMENT"})
	assert.ErrorIs(t, err, ErrUnsupportedValueType)
}
