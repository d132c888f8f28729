package cassandra

import "fmt"

// maxColumnOffset is the largest offset representable in the 31 usable
// bits of a packed column name.
const maxColumnOffset = 1<<31 - 1

// encodeColumnName packs (timestamp - rowTime) and a legacy type flag into
// the 32-bit column name used as the clustering key in the data table.
// typeFlag is 0 for integer-typed legacy points and 1 for floating-point
// legacy points; callers writing a non-legacy data type always pass 0,
// since the type is carried by the row key.
func encodeColumnName(rowTime, timestamp int64, typeFlag uint32) (uint32, error) {
	offset := timestamp - rowTime
	if offset < 0 || offset > maxColumnOffset {
		return 0, fmt.Errorf("cassandra: column offset %d out of range for row_time %d, timestamp %d", offset, rowTime, timestamp)
	}
	return uint32(offset)<<1 | (typeFlag & 1), nil
}

// decodeColumnName reverses encodeColumnName. It returns the timestamp
// offset (to be added to row_time by the caller) and whether the legacy
// is-long flag is set.
func decodeColumnName(column uint32) (offset int64, isLong bool) {
	return int64(column >> 1), column&1 == 0
}

// encodeColumnUpperBoundExclusive returns the column value one past the
// largest column any point timestamped at or before endMS could have,
// for use as an exclusive upper bound (`column1 < upper`). This matches
// the original implementation's QUERY_DATA_POINTS, which binds
// `column1 >= ? AND column1 < ?` rather than a `<=` inclusive bound — an
// inclusive bound would return an extra point for any write landing
// exactly on endMS and double-count that point across two adjacent
// back-to-back queries sharing that boundary.
//
// Falls back to the maximum column value when endMS+1 would overflow the
// 31-bit offset, which requires a read window spanning more than 2^31 ms
// past a row's row_time — unreachable given the write path's own
// maxColumnOffset validation.
func encodeColumnUpperBoundExclusive(rowTime, endMS int64) uint32 {
	upper, err := encodeColumnName(rowTime, endMS+1, 0)
	if err != nil {
		return ^uint32(0)
	}
	return upper
}
