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


package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/importer/core"
)

// ImportPositionMUS is the MUS serializer for core.ImportPosition.
// Field order is part of the on-disk format; append new fields at the end.
var ImportPositionMUS = importPositionMUS{}

type importPositionMUS struct{}

func (s importPositionMUS) Marshal(v core.ImportPosition, bs []byte) (n int) {
	n = varint.Int64.Marshal(int64(v.PartitionID), bs)
	n += varint.Int64.Marshal(int64(v.ValueType), bs[n:])
	n += varint.Int64.Marshal(v.Position, bs[n:])
	n += varint.Int64.Marshal(v.Sequence, bs[n:])
	n += ord.String.Marshal(v.IndexName, bs[n:])
	n += ord.Bool.Marshal(v.Completed, bs[n:])
	n += varint.Int64.Marshal(timeToMicro(v.UpdatedAt), bs[n:])
	return
}

func (s importPositionMUS) Unmarshal(bs []byte) (v core.ImportPosition, n int, err error) {
	var (
		n1        int
		partition int64
		valueType int64
		updatedAt int64
	)
	partition, n, err = varint.Int64.Unmarshal(bs)
	if err != nil {
		return
	}
	v.PartitionID = int(partition)

	valueType, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ValueType = core.ValueType(valueType)

	v.Position, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	v.Sequence, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	v.IndexName, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	v.Completed, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	updatedAt, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt = microToTime(updatedAt)
	return
}

func (s importPositionMUS) Size(v core.ImportPosition) (size int) {
	size = varint.Int64.Size(int64(v.PartitionID))
	size += varint.Int64.Size(int64(v.ValueType))
	size += varint.Int64.Size(v.Position)
	size += varint.Int64.Size(v.Sequence)
	size += ord.String.Size(v.IndexName)
	size += ord.Bool.Size(v.Completed)
	size += varint.Int64.Size(timeToMicro(v.UpdatedAt))
	return
}

// MarshalImportPosition serializes an ImportPosition to bytes.
func MarshalImportPosition(pos *core.ImportPosition) []byte {
	buf := make([]byte, ImportPositionMUS.Size(*pos))
	ImportPositionMUS.Marshal(*pos, buf)
	return buf
}

// UnmarshalImportPosition deserializes an ImportPosition from bytes.
func UnmarshalImportPosition(data []byte) (*core.ImportPosition, error) {
	pos, n, err := ImportPositionMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return &pos, nil
}

func timeToMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func microToTime(micros int64) time.Time {
	if micros == 0 {
		return time.Time{}
	}
	return time.UnixMicro(micros).UTC()
}
