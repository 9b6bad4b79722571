package badger

import (
	"encoding/binary"

	"github.com/poiesic/importer/core"
)

// Key prefixes for different data types
const (
	importPositionPrefix = "imppos"
)

// makePositionKey generates a composite key for an import position.
// Format: prefix:valueType:partitionID
func makePositionKey(valueType core.ValueType, partitionID int) []byte {
	prefix := importPositionPrefix + ":"
	prefixBytes := []byte(prefix)
	totalSize := len(prefixBytes) + 8 // 4 bytes for value type + 4 bytes for partition
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint32(buf[offset:], uint32(valueType))
	offset += 4
	binary.BigEndian.PutUint32(buf[offset:], uint32(partitionID))
	return buf
}

// makePartialPositionKey generates a partial key matching every partition of a value type.
// Format: prefix:valueType
func makePartialPositionKey(valueType core.ValueType) []byte {
	prefix := importPositionPrefix + ":"
	prefixBytes := []byte(prefix)
	buf := make([]byte, len(prefixBytes)+4)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint32(buf[offset:], uint32(valueType))
	return buf
}

// positionPrefix matches every import position key.
func positionPrefix() []byte {
	return []byte(importPositionPrefix + ":")
}
