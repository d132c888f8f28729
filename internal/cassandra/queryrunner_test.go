package cassandra

import "testing"

func TestBatchRowKeysCollapsesBelowThreshold(t *testing.T) {
	keys := make([]RowKey, singleBatchThreshold-1)
	for i := range keys {
		keys[i] = RowKey{MetricName: "m", RowTime: int64(i), DataType: "long"}
	}

	batches := batchRowKeys(keys)
	if len(batches) != 1 {
		t.Fatalf("expected a single batch below the threshold, got %d", len(batches))
	}
	if len(batches[0].keys) != len(keys) {
		t.Errorf("batch holds %d keys, want %d", len(batches[0].keys), len(keys))
	}
}

func TestBatchRowKeysGroupsByRowTimeAndDataType(t *testing.T) {
	keys := make([]RowKey, 0, singleBatchThreshold+3)
	for i := 0; i < singleBatchThreshold; i++ {
		keys = append(keys, RowKey{MetricName: "m", RowTime: 100, DataType: "long"})
	}
	keys = append(keys, RowKey{MetricName: "m", RowTime: 100, DataType: "double"})
	keys = append(keys, RowKey{MetricName: "m", RowTime: 200, DataType: "double"})

	batches := batchRowKeys(keys)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[0].keys) != singleBatchThreshold {
		t.Errorf("first batch holds %d keys, want %d", len(batches[0].keys), singleBatchThreshold)
	}
	if batches[1].dataType != "double" || batches[1].rowTime != 100 {
		t.Errorf("second batch = %+v, want rowTime=100 dataType=double", batches[1])
	}
	if batches[2].rowTime != 200 {
		t.Errorf("third batch rowTime = %d, want 200", batches[2].rowTime)
	}
}

func TestBatchRowKeysEmpty(t *testing.T) {
	if batches := batchRowKeys(nil); batches != nil {
		t.Errorf("expected nil batches for empty input, got %v", batches)
	}
}
