// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
)

// ValidateRecord validates a Record according to domain rules.
//
// Validation rules:
//   - PartitionID must be positive
//   - Position and Sequence must not be negative
//   - ValueType must name a known value type
//   - Value must not be empty
//
// NOT validated:
//   - Intent (engines add intents between versions)
//   - IndexName (set by the reader, not the engine)
func ValidateRecord(record *Record) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if record.PartitionID < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrInvalidPartition)
	}

	if record.Position < 0 || record.Sequence < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrNegativePosition)
	}

	if _, err := ParseValueType(record.ValueType); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	if len(record.Value) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrMissingValue)
	}

	return nil
}

// ValidateImportPosition validates an ImportPosition before it is persisted.
func ValidateImportPosition(pos *ImportPosition) error {
	if pos == nil {
		return fmt.Errorf("%w: position is nil", ErrInvalidPosition)
	}

	if pos.PartitionID < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidPosition, ErrInvalidPartition)
	}

	if err := ValidateValueType(pos.ValueType); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPosition, err)
	}

	if pos.Position < 0 || pos.Sequence < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPosition, ErrNegativePosition)
	}

	return nil
}

// ValidateValueType validates that a ValueType has a known value.
func ValidateValueType(vt ValueType) error {
	if _, ok := valueTypeNames[vt]; !ok {
		return fmt.Errorf("%w: value %d", ErrInvalidValueType, vt)
	}
	return nil
}
