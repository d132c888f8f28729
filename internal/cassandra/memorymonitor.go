package cassandra

import (
	"runtime"
	"sync/atomic"
)

// memoryMonitor performs a sampling check of heap usage between keys and
// between batches during a query run, aborting with OutOfMemoryError once
// a configured ceiling is exceeded. It samples every checkEveryN calls
// rather than reading memory on every key, so a tight query loop doesn't
// pay runtime.ReadMemStats's cost per row.
type memoryMonitor struct {
	ceilingBytes uint64
	checkEveryN  uint32
	calls        atomic.Uint32
}

// newMemoryMonitor builds a monitor that throws once heap allocation
// exceeds ceilingBytes. A ceilingBytes of 0 disables the check.
func newMemoryMonitor(ceilingBytes uint64) *memoryMonitor {
	return &memoryMonitor{ceilingBytes: ceilingBytes, checkEveryN: 20}
}

// check samples heap usage every checkEveryN calls and returns
// OutOfMemoryError if the configured ceiling is exceeded.
func (m *memoryMonitor) check() error {
	if m.ceilingBytes == 0 {
		return nil
	}
	if m.calls.Add(1)%m.checkEveryN != 0 {
		return nil
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.HeapAlloc > m.ceilingBytes {
		return &OutOfMemoryError{Msg: "query aborted: heap allocation exceeded configured ceiling"}
	}
	return nil
}
