package cassandra

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// Separator and terminator bytes used by the binary row-key layout. A
// name or value containing one of these is rejected.
const (
	fieldTerminator byte = 0x00
	tagKVSeparator  byte = '='
	tagEntrySeparator byte = ':'
)

// RowKey is the logical tuple (metric_name, row_time, data_type, tags)
// that identifies one partition in the data table.
//
// Two keys are equal iff all four fields are equal; RowKey is intended to
// be compared via Equal, not Go's == (Tags is a map).
type RowKey struct {
	MetricName string
	RowTime    int64
	DataType   string
	Tags       Tags
}

// Equal reports whether two row keys describe the same logical tuple.
func (k RowKey) Equal(o RowKey) bool {
	if k.MetricName != o.MetricName || k.RowTime != o.RowTime || k.DataType != o.DataType {
		return false
	}
	if len(k.Tags) != len(o.Tags) {
		return false
	}
	for tk, tv := range k.Tags {
		if ov, ok := o.Tags[tk]; !ok || ov != tv {
			return false
		}
	}
	return true
}

// Less orders row keys by row_time ascending, then data_type, then
// metric_name, then tag-map entries — the comparison the query runner
// uses to form batches.
func (k RowKey) Less(o RowKey) bool {
	if k.RowTime != o.RowTime {
		return k.RowTime < o.RowTime
	}
	if k.DataType != o.DataType {
		return k.DataType < o.DataType
	}
	if k.MetricName != o.MetricName {
		return k.MetricName < o.MetricName
	}
	kKeys, oKeys := k.Tags.SortedKeys(), o.Tags.SortedKeys()
	for i := 0; i < len(kKeys) && i < len(oKeys); i++ {
		if kKeys[i] != oKeys[i] {
			return kKeys[i] < oKeys[i]
		}
		if kv, ov := k.Tags[kKeys[i]], o.Tags[oKeys[i]]; kv != ov {
			return kv < ov
		}
	}
	return len(kKeys) < len(oKeys)
}

// RowKeySerializer serializes and deserializes RowKey to and from its
// canonical byte layout:
//
//	metric_name UTF-8, 0x00,
//	row_time int64 big-endian,
//	data_type UTF-8, 0x00,
//	(tag_key UTF-8, '=', tag_value UTF-8, ':')* in ascending tag-key order
//
// The codec is deterministic and injective: a given logical tuple has
// exactly one canonical serialized form.
type RowKeySerializer struct{}

// ToBytes serializes a RowKey. It fails with MalformedKeyError if any
// embedded separator or terminator byte appears in a name or value.
func (RowKeySerializer) ToBytes(k RowKey) ([]byte, error) {
	if err := checkClean(k.MetricName, "metric name"); err != nil {
		return nil, err
	}
	if err := checkClean(k.DataType, "data type"); err != nil {
		return nil, err
	}
	for tk, tv := range k.Tags {
		if err := checkClean(tk, "tag key"); err != nil {
			return nil, err
		}
		if err := checkClean(tv, "tag value"); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	buf.WriteString(k.MetricName)
	buf.WriteByte(fieldTerminator)

	var rowTimeBytes [8]byte
	binary.BigEndian.PutUint64(rowTimeBytes[:], uint64(k.RowTime))
	buf.Write(rowTimeBytes[:])

	buf.WriteString(k.DataType)
	buf.WriteByte(fieldTerminator)

	for _, tagKey := range k.Tags.SortedKeys() {
		buf.WriteString(tagKey)
		buf.WriteByte(tagKVSeparator)
		buf.WriteString(k.Tags[tagKey])
		buf.WriteByte(tagEntrySeparator)
	}

	return buf.Bytes(), nil
}

// FromBytes deserializes bytes produced by ToBytes back into a RowKey.
func (RowKeySerializer) FromBytes(b []byte) (RowKey, error) {
	metricName, rest, err := readUntil(b, fieldTerminator)
	if err != nil {
		return RowKey{}, &MalformedKeyError{Msg: "row key: missing metric name terminator"}
	}

	if len(rest) < 8 {
		return RowKey{}, &MalformedKeyError{Msg: "row key: truncated row_time"}
	}
	rowTime := int64(binary.BigEndian.Uint64(rest[:8]))
	rest = rest[8:]

	dataType, rest, err := readUntil(rest, fieldTerminator)
	if err != nil {
		return RowKey{}, &MalformedKeyError{Msg: "row key: missing data type terminator"}
	}

	tags := Tags{}
	for len(rest) > 0 {
		tagKey, afterKey, err := readUntil(rest, tagKVSeparator)
		if err != nil {
			return RowKey{}, &MalformedKeyError{Msg: "row key: missing tag key/value separator"}
		}
		tagValue, afterValue, err := readUntil(afterKey, tagEntrySeparator)
		if err != nil {
			return RowKey{}, &MalformedKeyError{Msg: "row key: missing tag entry separator"}
		}
		tags[string(tagKey)] = string(tagValue)
		rest = afterValue
	}

	return RowKey{
		MetricName: string(metricName),
		RowTime:    rowTime,
		DataType:   string(dataType),
		Tags:       tags,
	}, nil
}

// readUntil splits b at the first occurrence of sep, returning the span
// before sep and the remainder after it.
func readUntil(b []byte, sep byte) (before, after []byte, err error) {
	idx := bytes.IndexByte(b, sep)
	if idx < 0 {
		return nil, nil, &MalformedKeyError{Msg: "separator not found"}
	}
	return b[:idx], b[idx+1:], nil
}

// checkClean rejects names/values that embed a separator or terminator
// byte, which would make the serialization ambiguous to decode.
func checkClean(s, field string) error {
	if bytes.IndexByte([]byte(s), fieldTerminator) >= 0 ||
		bytes.IndexByte([]byte(s), tagKVSeparator) >= 0 ||
		bytes.IndexByte([]byte(s), tagEntrySeparator) >= 0 {
		return &MalformedKeyError{Msg: "row key: " + field + " contains a reserved separator byte"}
	}
	return nil
}

// SortRowKeys sorts keys in place using RowKey.Less, the ordering the
// query runner needs to form (row_time, data_type) batches.
func SortRowKeys(keys []RowKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}
