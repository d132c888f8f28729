package cassandra

import "testing"

func TestRowKeyRoundTrip(t *testing.T) {
	s := RowKeySerializer{}
	k := RowKey{
		MetricName: "cpu.usage",
		RowTime:    1700000000000,
		DataType:   "long",
		Tags:       Tags{"host": "a", "dc": "eu-west"},
	}

	b, err := s.ToBytes(k)
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}

	got, err := s.FromBytes(b)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if !got.Equal(k) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, k)
	}
}

func TestRowKeyRoundTripNoTags(t *testing.T) {
	s := RowKeySerializer{}
	k := RowKey{MetricName: "mem.free", RowTime: -3600000, DataType: "double"}

	b, err := s.ToBytes(k)
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	got, err := s.FromBytes(b)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if !got.Equal(k) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, k)
	}
}

func TestRowKeyRejectsEmbeddedSeparator(t *testing.T) {
	s := RowKeySerializer{}
	cases := []RowKey{
		{MetricName: "bad\x00metric", RowTime: 0, DataType: "long"},
		{MetricName: "ok", RowTime: 0, DataType: "long", Tags: Tags{"host=x": "a"}},
		{MetricName: "ok", RowTime: 0, DataType: "long", Tags: Tags{"host": "a:b"}},
	}
	for i, k := range cases {
		if _, err := s.ToBytes(k); err == nil {
			t.Errorf("case %d: expected MalformedKeyError, got nil", i)
		}
	}
}

func TestRowKeyFromBytesRejectsTruncated(t *testing.T) {
	s := RowKeySerializer{}
	if _, err := s.FromBytes([]byte("no-terminator")); err == nil {
		t.Error("expected error for missing metric name terminator")
	}
}

func TestSortRowKeysOrdersByRowTimeThenDataTypeThenMetric(t *testing.T) {
	keys := []RowKey{
		{MetricName: "b", RowTime: 200, DataType: "long"},
		{MetricName: "a", RowTime: 100, DataType: "double"},
		{MetricName: "a", RowTime: 100, DataType: "long"},
	}
	SortRowKeys(keys)

	got := [3]string{}
	for i, k := range keys {
		got[i] = k.MetricName + ":" + k.DataType
	}
	want := [3]string{"a:double", "a:long", "b:long"}
	if got != want {
		t.Errorf("sorted order = %v, want %v", got, want)
	}
}
