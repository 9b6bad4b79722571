package processor

import (
	"fmt"
	"strconv"
	"time"

	"github.com/poiesic/importer/core"
	"github.com/poiesic/importer/destination"
)

// DefaultTenantID is the tenant of records written before multi-tenancy
// and of records that do not name one.
const DefaultTenantID = "<default>"

// Decoder converts one EVENT record into an entity. A nil entity with a nil
// error means the record does not map to an entity and is skipped.
type Decoder interface {
	Decode(rec *core.Record) (*destination.Entity, error)
}

// LegacyDecoder decodes payloads of engines without multi-tenancy.
type LegacyDecoder struct{}

// Decode implements Decoder.
func (LegacyDecoder) Decode(rec *core.Record) (*destination.Entity, error) {
	return decodeEntity(rec, DefaultTenantID)
}

// TenantDecoder decodes payloads that carry a tenantId.
type TenantDecoder struct{}

// Decode implements Decoder.
func (TenantDecoder) Decode(rec *core.Record) (*destination.Entity, error) {
	tenant, ok, err := payload(rec.Value).stringField("tenantId")
	if err != nil {
		return nil, err
	}
	if !ok || tenant == "" {
		tenant = DefaultTenantID
	}
	return decodeEntity(rec, tenant)
}

func decodeEntity(rec *core.Record, tenantID string) (*destination.Entity, error) {
	vt, err := core.ParseValueType(rec.ValueType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedValueType, rec.ValueType)
	}

	r := &reader{p: payload(rec.Value)}
	var e *destination.Entity
	switch vt {
	case core.ValueTypeProcessInstance:
		e = decodeProcessInstance(rec, r)
	case core.ValueTypeJob:
		e = decodeJob(rec, r)
	case core.ValueTypeIncident:
		e = decodeIncident(rec, r)
	case core.ValueTypeVariable:
		e = decodeVariable(rec, r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedValueType, rec.ValueType)
	}
	if r.err != nil {
		return nil, r.err
	}
	if e == nil {
		return nil, nil
	}

	e.PartitionID = rec.PartitionID
	e.Position = rec.Position
	e.TenantID = tenantID
	e.UpdatedAt = rec.Time()
	if rec.Timestamp == 0 {
		e.UpdatedAt = time.Now().UTC()
	}
	return e, nil
}

var processInstanceStates = map[string]string{
	"ELEMENT_ACTIVATING":  "ACTIVE",
	"ELEMENT_ACTIVATED":   "ACTIVE",
	"ELEMENT_COMPLETING":  "ACTIVE",
	"ELEMENT_COMPLETED":   "COMPLETED",
	"ELEMENT_TERMINATING": "ACTIVE",
	"ELEMENT_TERMINATED":  "CANCELED",
}

// Only records of the process element itself describe the instance;
// flow node records are skipped.
func decodeProcessInstance(rec *core.Record, r *reader) *destination.Entity {
	elementType := r.requiredString("bpmnElementType")
	key := r.requiredInt64("processInstanceKey")
	bpmnProcessID := r.requiredString("bpmnProcessId")
	version := r.intField("version")
	definitionKey := r.intField("processDefinitionKey")
	parentKey := r.intField("parentProcessInstanceKey")
	if r.err != nil || elementType != "PROCESS" {
		return nil
	}

	state, ok := processInstanceStates[rec.Intent]
	if !ok {
		state = rec.Intent
	}
	return &destination.Entity{
		Kind:               destination.KindProcessInstance,
		ID:                 strconv.FormatInt(key, 10),
		Key:                key,
		ProcessInstanceKey: key,
		BpmnProcessID:      bpmnProcessID,
		State:              state,
		Attributes: map[string]any{
			"version":                  version,
			"processDefinitionKey":     definitionKey,
			"parentProcessInstanceKey": parentKey,
		},
	}
}

func decodeJob(rec *core.Record, r *reader) *destination.Entity {
	jobType := r.requiredString("type")
	processInstanceKey := r.intField("processInstanceKey")
	bpmnProcessID := r.stringField("bpmnProcessId")
	elementID := r.stringField("elementId")
	worker := r.stringField("worker")
	retries := r.intField("retries")
	errorMessage := r.stringField("errorMessage")
	if r.err != nil {
		return nil
	}

	attrs := map[string]any{
		"type":      jobType,
		"elementId": elementID,
		"worker":    worker,
		"retries":   retries,
	}
	if errorMessage != "" {
		attrs["errorMessage"] = errorMessage
	}
	return &destination.Entity{
		Kind:               destination.KindJob,
		ID:                 strconv.FormatInt(rec.Key, 10),
		Key:                rec.Key,
		ProcessInstanceKey: processInstanceKey,
		BpmnProcessID:      bpmnProcessID,
		State:              rec.Intent,
		Attributes:         attrs,
	}
}

var incidentStates = map[string]string{
	"CREATED":  "ACTIVE",
	"RESOLVED": "RESOLVED",
}

func decodeIncident(rec *core.Record, r *reader) *destination.Entity {
	errorType := r.requiredString("errorType")
	errorMessage := r.stringField("errorMessage")
	processInstanceKey := r.intField("processInstanceKey")
	bpmnProcessID := r.stringField("bpmnProcessId")
	elementID := r.stringField("elementId")
	jobKey := r.intField("jobKey")
	if r.err != nil {
		return nil
	}

	state, ok := incidentStates[rec.Intent]
	if !ok {
		state = rec.Intent
	}
	return &destination.Entity{
		Kind:               destination.KindIncident,
		ID:                 strconv.FormatInt(rec.Key, 10),
		Key:                rec.Key,
		ProcessInstanceKey: processInstanceKey,
		BpmnProcessID:      bpmnProcessID,
		State:              state,
		Attributes: map[string]any{
			"errorType":    errorType,
			"errorMessage": errorMessage,
			"elementId":    elementID,
			"jobKey":       jobKey,
		},
	}
}

// Variables are identified by their scope and name rather than the record
// key, so updates to the same variable land on the same entity.
func decodeVariable(rec *core.Record, r *reader) *destination.Entity {
	name := r.requiredString("name")
	scopeKey := r.requiredInt64("scopeKey")
	value := r.stringField("value")
	processInstanceKey := r.intField("processInstanceKey")
	bpmnProcessID := r.stringField("bpmnProcessId")
	if r.err != nil {
		return nil
	}

	id := core.IDFromContent(fmt.Sprintf("%d-%s", scopeKey, name))
	return &destination.Entity{
		Kind:               destination.KindVariable,
		ID:                 strconv.FormatUint(uint64(id), 10),
		Key:                rec.Key,
		ProcessInstanceKey: processInstanceKey,
		BpmnProcessID:      bpmnProcessID,
		State:              rec.Intent,
		Attributes: map[string]any{
			"name":     name,
			"value":    value,
			"scopeKey": scopeKey,
		},
	}
}
