// Package metrics tracks the engine-level counters named in the storage
// engine specification: row-key index inserts, split-index inserts, warm-up
// inserts, and the two query limit-exceeded counters. Counters are
// monotonic between collections and reset to zero on snapshot, mirroring
// how the reference datastore reports them as periodic DataPointSets.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Counters holds the five engine counters surfaced by the storage engine.
//
// Names match the `kairosdb.*` metric names from the specification so a
// caller can attach them to whatever reporting sink it uses; this package
// only owns the counting, not the reporting path (out of scope).
type Counters struct {
	RowKeyIndexInserted      atomic.Int64
	NextRowKeyIndexInserted  atomic.Int64
	RowKeySplitIndexInserted atomic.Int64
	ReadRowsLimitExceeded    atomic.Int64
	FilteredRowsLimitExceeded atomic.Int64

	logger zerolog.Logger
}

var (
	instance *Counters
	once     sync.Once
)

// Get returns the process-wide counters instance.
func Get() *Counters {
	once.Do(func() {
		instance = &Counters{}
	})
	return instance
}

// Init attaches a logger to the counters instance. Safe to call multiple times.
func Init(logger zerolog.Logger) *Counters {
	c := Get()
	c.logger = logger.With().Str("component", "metrics").Logger()
	return c
}

// Snapshot is a single named counter value captured at Timestamp, shaped
// like the DataPointSet the reference implementation emits from
// getMetrics(now).
type Snapshot struct {
	Name      string
	Timestamp time.Time
	Value     int64
	Tags      map[string]string
}

// Collect snapshots and resets all five counters, tagging each with host.
// Intended to be called periodically by whatever reporting sink the caller
// wires up; this engine does not schedule the collection itself.
func (c *Counters) Collect(host string) []Snapshot {
	now := time.Now()
	tags := map[string]string{"host": host}

	return []Snapshot{
		snap("kairosdb.inserted.row_key_index", now, &c.RowKeyIndexInserted, tags),
		snap("kairosdb.inserted.next_row_key_index", now, &c.NextRowKeyIndexInserted, tags),
		snap("kairosdb.inserted.row_key_split_index", now, &c.RowKeySplitIndexInserted, tags),
		snap("kairosdb.limits.read_rows_exceeded", now, &c.ReadRowsLimitExceeded, tags),
		snap("kairosdb.limits.filtered_rows_exceeded", now, &c.FilteredRowsLimitExceeded, tags),
	}
}

func snap(name string, now time.Time, counter *atomic.Int64, tags map[string]string) Snapshot {
	return Snapshot{
		Name:      name,
		Timestamp: now,
		Value:     counter.Swap(0),
		Tags:      tags,
	}
}
