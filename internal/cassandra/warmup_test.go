package cassandra

import "testing"

func TestIsWarmingUpNeededNearBucketBoundary(t *testing.T) {
	nextRowTime := int64(1000 * 60 * 60) // some bucket boundary, ms
	heatingInterval := 60                // minutes
	rowInterval := 5                     // minutes

	// A write landing one minute before the boundary sits well inside the
	// heating window regardless of hash-derived jitter (at most 5 minutes).
	now := nextRowTime - 60*1000
	if !isWarmingUpNeeded(42, now, nextRowTime, heatingInterval, rowInterval) {
		t.Error("expected warm-up near the end of a bucket to trigger")
	}
}

func TestIsWarmingUpNeededFalseWhenDisabled(t *testing.T) {
	if isWarmingUpNeeded(1, 0, 1000, 0, 5) {
		t.Error("a zero heating interval must never trigger warm-up")
	}
}

func TestIsWarmingUpNeededFalseOutsideWindow(t *testing.T) {
	nextRowTime := int64(1000 * 60 * 60)
	// Far from the boundary: well outside any heating window.
	now := nextRowTime - 1000*60*60*5
	if isWarmingUpNeeded(7, now, nextRowTime, 60, 5) {
		t.Error("expected no warm-up far from the bucket boundary")
	}
}

func TestIsWarmingUpNeededFalseAfterBoundary(t *testing.T) {
	nextRowTime := int64(1000 * 60 * 60)
	if isWarmingUpNeeded(7, nextRowTime+1, nextRowTime, 60, 5) {
		t.Error("expected no warm-up once the next bucket has already started")
	}
}

func TestIsWarmingUpNeededDeterministicPerKey(t *testing.T) {
	nextRowTime := int64(1000 * 60 * 60)
	now := nextRowTime - 30*1000*60

	first := isWarmingUpNeeded(99, now, nextRowTime, 60, 5)
	second := isWarmingUpNeeded(99, now, nextRowTime, 60, 5)
	if first != second {
		t.Error("expected the predicate to be a pure function of its inputs")
	}
}
