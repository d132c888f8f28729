package cassandra

import "context"

// singleBatchThreshold is the candidate-count threshold below which the
// runner collapses every candidate into a single batch rather than
// grouping by (row_time, data_type).
const singleBatchThreshold = 64

// rowKeyBatch is a run of candidate keys sharing (row_time, data_type),
// the grouping the query runner issues one range slice per.
type rowKeyBatch struct {
	rowTime  int64
	dataType string
	keys     []RowKey
}

// QueryRunner executes a planned set of candidate row keys against the
// data table, streaming decoded points to a callback in requested order.
type QueryRunner struct {
	session store
	codec   DataPointValueCodec
	tracer  tracer
}

// NewQueryRunner builds a QueryRunner bound to session, decoding stored
// payloads with codec.
func NewQueryRunner(session store, codec DataPointValueCodec, tr tracer) *QueryRunner {
	return &QueryRunner{session: session, codec: codec, tracer: tr}
}

// Run sorts, batches, and streams candidateKeys into callback, honoring
// query.Order and a memory ceiling. query.Limit, if positive, bounds the
// number of rows requested by each row key's range slice.
func (r *QueryRunner) Run(ctx context.Context, candidateKeys []RowKey, query *Query, callback QueryCallback, memCeilingBytes uint64) error {
	sorted := make([]RowKey, len(candidateKeys))
	copy(sorted, candidateKeys)
	SortRowKeys(sorted)

	batches := batchRowKeys(sorted)
	monitor := newMemoryMonitor(memCeilingBytes)

	for _, batch := range batches {
		if err := monitor.check(); err != nil {
			return err
		}

		for _, key := range batch.keys {
			if err := r.runOneKey(ctx, key, query, callback, monitor); err != nil {
				return err
			}
		}
	}

	return nil
}

// runOneKey issues the range slice for one candidate row key — one
// partition in the data table — and streams its points to callback.
// StartDataPointSet/EndDataPoints bracket each key rather than each
// (row_time, data_type) grouping, since a row key carries the full tag
// set and is what "a series" means to the callback; the (row_time,
// data_type) batches only decide how work is grouped for fan-out and
// memory-monitor sampling cadence.
func (r *QueryRunner) runOneKey(ctx context.Context, key RowKey, query *Query, callback QueryCallback, monitor *memoryMonitor) error {
	serializer := RowKeySerializer{}
	keyBytes, err := serializer.ToBytes(key)
	if err != nil {
		return newDatastoreError("serialize candidate row key", err)
	}

	lower, err := encodeColumnName(key.RowTime, query.StartMS, 0)
	if err != nil {
		lower = 0
	}
	upper := encodeColumnUpperBoundExclusive(key.RowTime, query.EndMS)

	callback.StartDataPointSet(key.DataType, key.Tags)

	limit := query.Limit
	if limit <= 0 {
		limit = int(^uint32(0) >> 1)
	}

	queryErr := r.session.dataRangeQuery(keyBytes, lower, upper, query.Order, limit, func(column uint32, value []byte) error {
		if err := monitor.check(); err != nil {
			return err
		}

		offset, isLong := decodeColumnName(column)
		payload, err := r.codec.Decode(key.DataType, value, isLong)
		if err != nil {
			r.tracer.recordError(ctx, err)
			return nil
		}

		dp := DataPoint{Timestamp: key.RowTime + offset, Value: payload, DataType: key.DataType}
		if err := callback.AddDataPoint(dp); err != nil {
			// A callback error is recorded but does not abort other batches.
			r.tracer.recordError(ctx, err)
			return nil
		}
		return nil
	})

	callback.EndDataPoints()

	return queryErr
}

// DeletePartialRows reuses the sort/batch/memory-monitor machinery of Run
// to issue the partial-row delete path: for every candidate key, range-scan
// the covering column window and delete each returned column individually,
// rather than decoding and streaming to a user callback.
func (r *QueryRunner) DeletePartialRows(ctx context.Context, candidateKeys []RowKey, query *Query, memCeilingBytes uint64) error {
	sorted := make([]RowKey, len(candidateKeys))
	copy(sorted, candidateKeys)
	SortRowKeys(sorted)

	batches := batchRowKeys(sorted)
	monitor := newMemoryMonitor(memCeilingBytes)

	for _, batch := range batches {
		if err := monitor.check(); err != nil {
			return err
		}

		for _, key := range batch.keys {
			if err := r.deleteOneKeyRange(key, query, monitor); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r *QueryRunner) deleteOneKeyRange(key RowKey, query *Query, monitor *memoryMonitor) error {
	serializer := RowKeySerializer{}
	keyBytes, err := serializer.ToBytes(key)
	if err != nil {
		return newDatastoreError("serialize candidate row key", err)
	}

	lower, err := encodeColumnName(key.RowTime, query.StartMS, 0)
	if err != nil {
		lower = 0
	}
	upper := encodeColumnUpperBoundExclusive(key.RowTime, query.EndMS)

	var columns []uint32
	unbounded := int(^uint32(0) >> 1)
	err = r.session.dataRangeQuery(keyBytes, lower, upper, OrderAscending, unbounded, func(column uint32, value []byte) error {
		if err := monitor.check(); err != nil {
			return err
		}
		columns = append(columns, column)
		return nil
	})
	if err != nil {
		return err
	}

	for _, column := range columns {
		if err := r.session.deleteColumn(keyBytes, column); err != nil {
			return err
		}
	}
	return nil
}

// batchRowKeys groups adjacent (already row_time-sorted) keys sharing
// (row_time, data_type) into batches; below singleBatchThreshold
// candidates, everything collapses into a single batch (spec.md §4.7
// step 2).
func batchRowKeys(sorted []RowKey) []rowKeyBatch {
	if len(sorted) == 0 {
		return nil
	}
	if len(sorted) < singleBatchThreshold {
		return []rowKeyBatch{{keys: sorted}}
	}

	var batches []rowKeyBatch
	current := rowKeyBatch{rowTime: sorted[0].RowTime, dataType: sorted[0].DataType}
	for _, key := range sorted {
		if key.RowTime != current.rowTime || key.DataType != current.dataType {
			batches = append(batches, current)
			current = rowKeyBatch{rowTime: key.RowTime, dataType: key.DataType}
		}
		current.keys = append(current.keys, key)
	}
	batches = append(batches, current)
	return batches
}
