package cassandra

// isWarmingUpNeeded is the pure predicate the write path consults before
// pre-creating the next time bucket's index entry. Writes near the end
// of a bucket warm the next one, and the row key's hash spreads the
// trigger point across a window sized by rowIntervalMinutes so
// concurrent writers into the same bucket don't all race to pre-create
// the next bucket at the same instant.
//
// heatingIntervalMinutes sizes the window before nextRowTime during which
// warm-up may fire at all. rowIntervalMinutes jitters the exact trigger
// point within that window, keyed off nextKeyHash so the same row key
// always resolves to the same trigger point.
func isWarmingUpNeeded(nextKeyHash int32, nowMS, nextRowTimeMS int64, heatingIntervalMinutes, rowIntervalMinutes int) bool {
	if heatingIntervalMinutes <= 0 {
		return false
	}

	const msPerMinute = int64(60 * 1000)
	heatingWindowMS := int64(heatingIntervalMinutes) * msPerMinute

	untilNextBucket := nextRowTimeMS - nowMS
	if untilNextBucket < 0 || untilNextBucket > heatingWindowMS {
		return false
	}

	jitterMinutes := int64(0)
	if rowIntervalMinutes > 0 {
		h := int64(nextKeyHash)
		if h < 0 {
			h = -h
		}
		jitterMinutes = h % int64(rowIntervalMinutes)
	}
	triggerAtMS := nextRowTimeMS - heatingWindowMS + jitterMinutes*msPerMinute

	return nowMS >= triggerAtMS && nowMS < nextRowTimeMS
}
