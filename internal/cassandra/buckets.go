package cassandra

// floorToWidth floors a millisecond timestamp to the nearest multiple of
// widthMS at or below it. Used for both the write row-time width and the
// read bucket width.
func floorToWidth(timestampMS, widthMS int64) int64 {
	if widthMS <= 0 {
		return timestampMS
	}
	if timestampMS >= 0 {
		return timestampMS - (timestampMS % widthMS)
	}
	// Floor, not truncate, for negative timestamps.
	rem := timestampMS % widthMS
	if rem == 0 {
		return timestampMS
	}
	return timestampMS - rem - widthMS
}

// bucketRange computes the list of read-bucket timestamps a query spans,
// asymmetric on purpose: the start uses the (wider) read width, the end
// uses the (narrower) write width so the final partial bucket is
// included.
func bucketRange(startMS, endMS, readWidthMS, writeWidthMS int64) []int64 {
	startBucket := floorToWidth(startMS, readWidthMS)
	endBucket := floorToWidth(endMS, writeWidthMS)

	if endBucket < startBucket {
		return []int64{startBucket}
	}

	buckets := make([]int64, 0, (endBucket-startBucket)/readWidthMS+1)
	for b := startBucket; b <= endBucket; b += readWidthMS {
		buckets = append(buckets, b)
	}
	return buckets
}
