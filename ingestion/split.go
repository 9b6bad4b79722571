package ingestion

import "github.com/poiesic/importer/core"

// SplitByIndex splits a batch into contiguous runs of records that share an
// index name. Order is preserved and every sub-batch inherits the parent's
// id, stream and query metadata. Batches of at most one record, and batches
// read from a single index, are returned as is.
func SplitByIndex(batch *core.ImportBatch) []*core.ImportBatch {
	if batch.Len() <= 1 {
		return []*core.ImportBatch{batch}
	}

	var subs []*core.ImportBatch
	start := 0
	for i := 1; i <= len(batch.Records); i++ {
		if i < len(batch.Records) && batch.Records[i].IndexName == batch.Records[start].IndexName {
			continue
		}
		subs = append(subs, subBatch(batch, batch.Records[start:i]))
		start = i
	}
	if len(subs) == 1 {
		return []*core.ImportBatch{batch}
	}
	return subs
}

func subBatch(parent *core.ImportBatch, records []*core.Record) *core.ImportBatch {
	return &core.ImportBatch{
		ID:            parent.ID,
		PartitionID:   parent.PartitionID,
		ValueType:     parent.ValueType,
		Records:       records,
		LastIndexName: records[len(records)-1].IndexName,
		From:          parent.From,
		Mode:          parent.Mode,
	}
}
