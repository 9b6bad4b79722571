package core

import (
	"errors"
	"testing"
)

func TestValidateRecord(t *testing.T) {
	valid := func() *Record {
		return &Record{
			PartitionID: 1,
			Position:    10,
			Sequence:    3,
			ValueType:   "JOB",
			Value:       map[string]any{"type": "payment"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *Record)
		wantErr error
	}{
		{name: "valid record", mutate: func(r *Record) {}},
		{name: "zero sequence is valid", mutate: func(r *Record) { r.Sequence = 0 }},
		{name: "partition zero", mutate: func(r *Record) { r.PartitionID = 0 }, wantErr: ErrInvalidPartition},
		{name: "negative position", mutate: func(r *Record) { r.Position = -1 }, wantErr: ErrNegativePosition},
		{name: "unknown value type", mutate: func(r *Record) { r.ValueType = "TIMER" }, wantErr: ErrInvalidValueType},
		{name: "empty value", mutate: func(r *Record) { r.Value = nil }, wantErr: ErrMissingValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			err := ValidateRecord(r)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateRecord() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("ValidateRecord() error should wrap ErrInvalidRecord, got %v", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRecord() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := ValidateRecord(nil); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("ValidateRecord(nil) = %v", err)
	}
}

func TestValidateImportPosition(t *testing.T) {
	if err := ValidateImportPosition(&ImportPosition{PartitionID: 1, ValueType: ValueTypeJob, Position: 5}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateImportPosition(nil); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("nil position: %v", err)
	}
	if err := ValidateImportPosition(&ImportPosition{PartitionID: 1, ValueType: 42}); !errors.Is(err, ErrInvalidValueType) {
		t.Errorf("bad value type: %v", err)
	}
	if err := ValidateImportPosition(&ImportPosition{PartitionID: 2, ValueType: ValueTypeJob, Sequence: -3}); !errors.Is(err, ErrNegativePosition) {
		t.Errorf("negative sequence: %v", err)
	}
}
