package core

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for destination entities.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ValueType identifies the logical category of an engine record.
// Each value type is imported independently of the others.
type ValueType int

const (
	// ValueTypeProcessInstance represents process instance lifecycle records.
	ValueTypeProcessInstance ValueType = iota + 1
	// ValueTypeJob represents job (task worker) records.
	ValueTypeJob
	// ValueTypeIncident represents incident records.
	ValueTypeIncident
	// ValueTypeVariable represents variable records.
	ValueTypeVariable
)

// AllValueTypes lists every value type the importer knows about, in import order.
var AllValueTypes = []ValueType{
	ValueTypeProcessInstance,
	ValueTypeJob,
	ValueTypeIncident,
	ValueTypeVariable,
}

var valueTypeNames = map[ValueType]string{
	ValueTypeProcessInstance: "PROCESS_INSTANCE",
	ValueTypeJob:             "JOB",
	ValueTypeIncident:        "INCIDENT",
	ValueTypeVariable:        "VARIABLE",
}

// String returns the engine's name for the value type, e.g. "PROCESS_INSTANCE".
func (v ValueType) String() string {
	if name, ok := valueTypeNames[v]; ok {
		return name
	}
	return fmt.Sprintf("ValueType(%d)", int(v))
}

// Alias returns the form used inside index names, e.g. "process-instance".
func (v ValueType) Alias() string {
	return strings.ReplaceAll(strings.ToLower(v.String()), "_", "-")
}

// ParseValueType accepts either the engine name ("PROCESS_INSTANCE") or the
// index alias ("process-instance"), case-insensitively.
func ParseValueType(s string) (ValueType, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for vt, name := range valueTypeNames {
		if name == normalized {
			return vt, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidValueType, s)
}

// RecordType values as written by the engine.
const (
	RecordTypeEvent            = "EVENT"
	RecordTypeCommand          = "COMMAND"
	RecordTypeCommandRejection = "COMMAND_REJECTION"
)

// Record is a raw engine record as stored in the source indices.
// Records are immutable once read; they live for the duration of one page.
type Record struct {
	PartitionID   int            `bson:"partitionId" json:"partitionId"`
	Position      int64          `bson:"position" json:"position"`
	Sequence      int64          `bson:"sequence" json:"sequence"`
	Key           int64          `bson:"key" json:"key"`
	RecordType    string         `bson:"recordType" json:"recordType"`
	ValueType     string         `bson:"valueType" json:"valueType"`
	Intent        string         `bson:"intent" json:"intent"`
	Timestamp     int64          `bson:"timestamp" json:"timestamp"` // epoch millis
	BrokerVersion string         `bson:"brokerVersion" json:"brokerVersion"`
	Value         map[string]any `bson:"value" json:"value"`

	// IndexName is the source index the record was read from. It is not part
	// of the stored document.
	IndexName string `bson:"-" json:"-"`
}

// Time returns the record timestamp as a UTC time.
func (r *Record) Time() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

// StreamKey identifies one independently ordered import stream.
type StreamKey struct {
	PartitionID int
	ValueType   ValueType
}

// String returns "<partition>/<VALUE_TYPE>".
func (k StreamKey) String() string {
	return fmt.Sprintf("%d/%s", k.PartitionID, k.ValueType)
}

// ImportPosition is the durable resume point of one stream.
type ImportPosition struct {
	PartitionID int
	ValueType   ValueType
	Position    int64
	Sequence    int64
	IndexName   string // Index the record at Position was read from
	Completed   bool   // Stream was fully caught up when this position was saved
	UpdatedAt   time.Time
}

// Key returns the stream key of the position.
func (p *ImportPosition) Key() StreamKey {
	return StreamKey{PartitionID: p.PartitionID, ValueType: p.ValueType}
}

// QueryMode selects how the fetcher windows the next page.
type QueryMode int

const (
	// QueryByPosition queries records strictly after the last position.
	QueryByPosition QueryMode = iota
	// QueryBySequence queries a fixed window of sequence values.
	QueryBySequence
)

func (m QueryMode) String() string {
	if m == QueryBySequence {
		return "sequence"
	}
	return "position"
}

// FetchState is the explicit reader state threaded through successive fetches.
// It is a value: fetch calls return an updated copy rather than mutating it.
type FetchState struct {
	Position              int64
	Sequence              int64
	HasSeenSequence       bool
	ConsecutiveEmptyPages int
	ForcePositionQuery    bool // Set after an existence check found records the sequence window missed
	BatchSize             int
}

// FetchStateFrom builds the initial fetch state for a stored position.
// A nil position starts from the beginning of the stream.
func FetchStateFrom(pos *ImportPosition, batchSize int) FetchState {
	state := FetchState{BatchSize: batchSize}
	if pos != nil {
		state.Position = pos.Position
		state.Sequence = pos.Sequence
		state.HasSeenSequence = pos.Sequence > 0
	}
	return state
}

// ImportBatch is one fetched page, or a contiguous single-index run of it.
type ImportBatch struct {
	ID            string // Correlation id shared by a page and its sub-batches
	PartitionID   int
	ValueType     ValueType
	Records       []*Record
	LastIndexName string
	From          FetchState // State the page was fetched with
	Mode          QueryMode  // Query that produced the page
}

// Key returns the stream key of the batch.
func (b *ImportBatch) Key() StreamKey {
	return StreamKey{PartitionID: b.PartitionID, ValueType: b.ValueType}
}

// Len returns the number of records in the batch.
func (b *ImportBatch) Len() int {
	return len(b.Records)
}

// Last returns the last record of the batch, or nil if it is empty.
func (b *ImportBatch) Last() *Record {
	if len(b.Records) == 0 {
		return nil
	}
	return b.Records[len(b.Records)-1]
}

// IndexNames returns the distinct index names in the batch in order of first appearance.
func (b *ImportBatch) IndexNames() []string {
	var names []string
	seen := make(map[string]struct{})
	for _, r := range b.Records {
		if _, ok := seen[r.IndexName]; ok {
			continue
		}
		seen[r.IndexName] = struct{}{}
		names = append(names, r.IndexName)
	}
	return names
}
