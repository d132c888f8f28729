package cassandra

import (
	"context"
	"errors"
	"hash/fnv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/zalando-zmon/kairosdb/internal/metrics"
)

// Datastore is the top-level engine: the write path, the read path
// (planner + query runner), the delete path, and the supplemented
// metadata operations, all wired to a single Cassandra session (spec.md
// §2 component overview).
type Datastore struct {
	session  store
	caches   *Caches
	counters *metrics.Counters
	planner  *Planner
	runner   *QueryRunner
	codec    DataPointValueCodec
	tracer   tracer
	logger   zerolog.Logger

	writesStopped  atomic.Bool
	queriesStopped atomic.Bool

	writeWidthMS int64
	readWidthMS  int64
	defaultTTLSeconds int

	warmUpEnabled          bool
	warmUpHeatingIntervalMinutes int
	warmUpRowIntervalMinutes     int

	indexTagList   []string
	metricTagOverrides map[string][]string

	maxRowsForKeysQuery int
	maxRowKeysForQuery  int

	memCeilingBytes uint64
}

// DatastoreConfig bundles the construction-time parameters for a
// Datastore, mirroring the recognized configuration options in spec.md
// §6.
type DatastoreConfig struct {
	WriteWidthMS, ReadWidthMS int64
	DefaultTTLSeconds         int

	WarmUpEnabled                bool
	WarmUpHeatingIntervalMinutes int
	WarmUpRowIntervalMinutes     int

	IndexTagList       []string
	MetricTagOverrides map[string][]string

	MaxRowsForKeysQuery int
	MaxRowKeysForQuery  int

	CacheSize int
	MemoryCeilingBytes uint64

	MaxConcurrentLookups int64
	QuerySamplingPercentage int
}

// NewDatastore wires a Datastore over an already-open Session. otelTracer
// may be nil, in which case span creation is a no-op throughout the
// engine (spec.md §9 "Global singletons").
func NewDatastore(session store, cfg DatastoreConfig, codec DataPointValueCodec, otelTracer trace.Tracer, logger zerolog.Logger) *Datastore {
	counters := metrics.Get()
	tr := newTracer(otelTracer)

	indexTTLSeconds := cfg.DefaultTTLSeconds
	if indexTTLSeconds > 0 {
		indexTTLSeconds += int(cfg.WriteWidthMS / 1000)
	}
	caches := NewCaches(cfg.CacheSize, ttlSecondsToDuration(indexTTLSeconds))

	planner := NewPlanner(session, counters, cfg.MaxConcurrentLookups, cfg.QuerySamplingPercentage, tr)
	runner := NewQueryRunner(session, codec, tr)

	return &Datastore{
		session:  session,
		caches:   caches,
		counters: counters,
		planner:  planner,
		runner:   runner,
		codec:    codec,
		tracer:   tr,
		logger:   logger.With().Str("component", "cassandra.datastore").Logger(),

		writeWidthMS:      cfg.WriteWidthMS,
		readWidthMS:       cfg.ReadWidthMS,
		defaultTTLSeconds: cfg.DefaultTTLSeconds,

		warmUpEnabled:                cfg.WarmUpEnabled,
		warmUpHeatingIntervalMinutes: cfg.WarmUpHeatingIntervalMinutes,
		warmUpRowIntervalMinutes:     cfg.WarmUpRowIntervalMinutes,

		indexTagList:       cfg.IndexTagList,
		metricTagOverrides: cfg.MetricTagOverrides,

		maxRowsForKeysQuery: cfg.MaxRowsForKeysQuery,
		maxRowKeysForQuery:  cfg.MaxRowKeysForQuery,

		memCeilingBytes: cfg.MemoryCeilingBytes,
	}
}

func ttlSecondsToDuration(ttlSeconds int) time.Duration {
	return time.Duration(ttlSeconds) * time.Second
}

// Close releases the underlying session (shutdown.PrioritySession).
func (d *Datastore) Close() error {
	return d.session.Close()
}

// PutDataPoint writes a single data point, maintaining the reverse
// indexes and caches per spec.md §4.4. ttlSeconds of 0 uses the
// configured default.
func (d *Datastore) PutDataPoint(ctx context.Context, metricName string, tags Tags, dp DataPoint, ttlSeconds int) error {
	if d.writesStopped.Load() {
		return newDatastoreError("put data point", errStoppedWrites)
	}

	ctx, end := d.tracer.startSpan(ctx, "put_data_point")
	defer end()

	ttl := ttlSeconds
	if ttl == 0 {
		ttl = d.defaultTTLSeconds
	}

	indexTTL := 0
	if ttl != 0 {
		indexTTL = ttl + int(d.writeWidthMS/1000)
	}

	rowTime := floorToWidth(dp.Timestamp, d.writeWidthMS)
	key := RowKey{MetricName: metricName, RowTime: rowTime, DataType: dp.DataType, Tags: tags}
	serializer := RowKeySerializer{}
	keyBytes, err := serializer.ToBytes(key)
	if err != nil {
		return newDatastoreError("serialize row key", err)
	}
	keyString := string(keyBytes)

	if !d.caches.RowKeys.IsKnown(keyString) {
		if err := d.storeRowKeyReverseLookups(metricName, rowTime, keyBytes, indexTTL, tags); err != nil {
			return err
		}
		d.counters.RowKeyIndexInserted.Add(1)
		d.caches.RowKeys.Insert(keyString)

		if err := d.storeMetricAndTagNames(metricName, tags); err != nil {
			return err
		}
	}

	if d.warmUpEnabled {
		if err := d.maybeWarmNextBucket(ctx, metricName, tags, dp, indexTTL); err != nil {
			return err
		}
	}

	payload, typeFlag, err := d.codec.Encode(dp)
	if err != nil {
		return newDatastoreError("encode data point value", err)
	}
	column, err := encodeColumnName(rowTime, dp.Timestamp, typeFlag)
	if err != nil {
		return newDatastoreError("encode column name", err)
	}

	return d.session.dataInsert(keyBytes, column, payload, ttl)
}

func (d *Datastore) storeRowKeyReverseLookups(metricName string, rowTime int64, keyBytes []byte, ttlSeconds int, tags Tags) error {
	if err := d.session.globalIndexInsert([]byte(metricName), keyBytes, rowTime, ttlSeconds); err != nil {
		return err
	}

	for _, tagName := range IndexableTags(metricName, d.indexTagList, d.metricTagOverrides) {
		value, ok := tags[tagName]
		if !ok || value == "" {
			continue
		}
		if err := d.session.splitIndexInsert(metricName, tagName, value, keyBytes, rowTime, ttlSeconds); err != nil {
			return err
		}
		d.counters.RowKeySplitIndexInserted.Add(1)
	}

	return nil
}

func (d *Datastore) storeMetricAndTagNames(metricName string, tags Tags) error {
	if !d.caches.MetricNames.IsKnown(metricName) {
		if err := d.session.stringInsert(stringIndexScopeMetricNames, metricName, d.defaultTTLSeconds); err != nil {
			return err
		}
		d.caches.MetricNames.Insert(metricName)
	}

	for _, tagName := range tags.SortedKeys() {
		if d.caches.TagNames.IsKnown(tagName) {
			continue
		}
		if err := d.session.stringInsert(stringIndexScopeTagNames, tagName, d.defaultTTLSeconds); err != nil {
			return err
		}
		d.caches.TagNames.Insert(tagName)
	}

	return nil
}

func (d *Datastore) maybeWarmNextBucket(ctx context.Context, metricName string, tags Tags, dp DataPoint, indexTTLSeconds int) error {
	nextRowTime := floorToWidth(dp.Timestamp+d.writeWidthMS, d.writeWidthMS)
	nextKey := RowKey{MetricName: metricName, RowTime: nextRowTime, DataType: dp.DataType, Tags: tags}

	serializer := RowKeySerializer{}
	nextKeyBytes, err := serializer.ToBytes(nextKey)
	if err != nil {
		return newDatastoreError("serialize next-bucket row key", err)
	}

	now := time.Now().UnixMilli()
	if !isWarmingUpNeeded(rowKeyHash(nextKeyBytes), now, nextRowTime, d.warmUpHeatingIntervalMinutes, d.warmUpRowIntervalMinutes) {
		return nil
	}

	nextKeyString := string(nextKeyBytes)
	if d.caches.RowKeys.IsKnown(nextKeyString) {
		return nil
	}

	if err := d.storeRowKeyReverseLookups(metricName, nextRowTime, nextKeyBytes, indexTTLSeconds, tags); err != nil {
		return err
	}
	d.caches.RowKeys.Insert(nextKeyString)
	d.counters.NextRowKeyIndexInserted.Add(1)
	return nil
}

// QueryDatabase runs a read query, streaming matched data points to
// callback (spec.md §4.6-4.7).
func (d *Datastore) QueryDatabase(ctx context.Context, query *Query, callback QueryCallback) error {
	if d.queriesStopped.Load() {
		return newDatastoreError("query database", errStoppedQueries)
	}

	ctx, end := d.tracer.startSpan(ctx, "query_datapoints")
	defer end()

	indexTags := IndexableTags(query.MetricName, d.indexTagList, d.metricTagOverrides)
	keys, err := d.planner.candidateKeys(ctx, query, indexTags, d.readWidthMS, d.writeWidthMS, d.maxRowsForKeysQuery, d.maxRowKeysForQuery)
	if err != nil {
		return err
	}

	return d.runner.Run(ctx, keys, query, callback, d.memCeilingBytes)
}

// GetMetricNames lists every metric name ever written, read from the
// string_index table's "metric_names" scope. Supplemented from the
// reference implementation's getMetricNames (not named by spec.md's
// distilled operation list, but implied by the DATA MODEL's string_index
// table).
func (d *Datastore) GetMetricNames(ctx context.Context) ([]string, error) {
	var names []string
	err := d.session.stringQuery(stringIndexScopeMetricNames, func(value string) error {
		names = append(names, value)
		return nil
	})
	return names, err
}

// GetTagNames lists every tag name ever written, read from the
// string_index table's "tag_names" scope.
func (d *Datastore) GetTagNames(ctx context.Context) ([]string, error) {
	var names []string
	err := d.session.stringQuery(stringIndexScopeTagNames, func(value string) error {
		names = append(names, value)
		return nil
	})
	return names, err
}

// QueryMetricTags returns the union of tag key/value pairs seen across
// every row key matching query, for the metric-tags API the original
// exposes alongside the main data query.
func (d *Datastore) QueryMetricTags(ctx context.Context, query *Query) (map[string]map[string]struct{}, error) {
	if d.queriesStopped.Load() {
		return nil, newDatastoreError("query metric tags", errStoppedQueries)
	}

	indexTags := IndexableTags(query.MetricName, d.indexTagList, d.metricTagOverrides)
	keys, err := d.planner.candidateKeys(ctx, query, indexTags, d.readWidthMS, d.writeWidthMS, d.maxRowsForKeysQuery, d.maxRowKeysForQuery)
	if err != nil {
		return nil, err
	}

	tagSet := make(map[string]map[string]struct{})
	monitor := newMemoryMonitor(d.memCeilingBytes)
	for _, key := range keys {
		for tagName, tagValue := range key.Tags {
			if err := monitor.check(); err != nil {
				return nil, err
			}
			values, ok := tagSet[tagName]
			if !ok {
				values = make(map[string]struct{})
				tagSet[tagName] = values
			}
			values[tagValue] = struct{}{}
		}
	}
	return tagSet, nil
}

// DeleteDataPoints removes every data point matching query, splitting
// candidate keys into rows fully covered by the query range (deleted as
// whole partitions, with their index entries removed) and rows only
// partially covered (left to the query runner's per-column delete path),
// per spec.md §4.8.
func (d *Datastore) DeleteDataPoints(ctx context.Context, query *Query) error {
	if d.queriesStopped.Load() {
		return newDatastoreError("delete data points", errStoppedQueries)
	}

	ctx, end := d.tracer.startSpan(ctx, "delete_data_points")
	defer end()

	indexTags := IndexableTags(query.MetricName, d.indexTagList, d.metricTagOverrides)
	keys, err := d.planner.candidateKeys(ctx, query, indexTags, d.readWidthMS, d.writeWidthMS, d.maxRowsForKeysQuery, d.maxRowKeysForQuery)
	if err != nil {
		return err
	}

	var fullRows, partialRows []RowKey
	for _, key := range keys {
		if query.StartMS <= key.RowTime && query.EndMS >= key.RowTime+d.readWidthMS-1 {
			fullRows = append(fullRows, key)
		} else {
			partialRows = append(partialRows, key)
		}
	}

	for _, key := range fullRows {
		if err := d.deleteFullRow(key, indexTags); err != nil {
			return err
		}
	}

	if len(partialRows) == 0 {
		return nil
	}
	return d.runner.DeletePartialRows(ctx, partialRows, query, d.memCeilingBytes)
}

// deleteFullRow removes a fully-covered row's partition and its reverse
// index entries. Whether to also drop the metric/tag names from
// string_index is left open by spec.md §9 ("mark remaining ambiguity ...
// as an open question — do not guess"): since string_index entries are
// shared across every row key for a metric or tag name, deleting one row
// must not remove names still referenced by other surviving rows, and
// this engine has no cheap way to tell whether it was the last one. So
// string_index is left untouched by a row delete.
func (d *Datastore) deleteFullRow(key RowKey, indexTags []string) error {
	serializer := RowKeySerializer{}
	keyBytes, err := serializer.ToBytes(key)
	if err != nil {
		return newDatastoreError("serialize row key for delete", err)
	}

	if err := d.session.deletePartitionData(keyBytes); err != nil {
		return err
	}
	if err := d.session.deleteGlobalIndexRow([]byte(key.MetricName), keyBytes); err != nil {
		return err
	}

	for _, tagName := range indexTags {
		value, ok := key.Tags[tagName]
		if !ok || value == "" {
			continue
		}
		if err := d.session.deleteSplitIndexRow(key.MetricName, tagName, value, keyBytes); err != nil {
			return err
		}
	}

	return nil
}

var (
	errStoppedWrites  = errors.New("datastore is shutting down: writes are no longer accepted")
	errStoppedQueries = errors.New("datastore is shutting down: queries are no longer accepted")
)

// WritePathShutdown adapts a Datastore's write path to
// shutdown.Shutdownable: closing it stops accepting new PutDataPoint
// calls without touching the underlying session, so it can be registered
// at shutdown.PriorityWritePath ahead of the session itself: new writes
// stop first, then new queries, and the session closes last. Neither
// guard waits for calls already in progress.
type WritePathShutdown struct{ Datastore *Datastore }

func (w WritePathShutdown) Close() error {
	w.Datastore.writesStopped.Store(true)
	return nil
}

// QueryPathShutdown adapts a Datastore's read path (QueryDatabase,
// DeleteDataPoints, QueryMetricTags) to shutdown.Shutdownable, registered
// at shutdown.PriorityQueryPath.
type QueryPathShutdown struct{ Datastore *Datastore }

func (q QueryPathShutdown) Close() error {
	q.Datastore.queriesStopped.Store(true)
	return nil
}

// rowKeyHash stands in for the reference implementation's
// DataPointsRowKey.hashCode() — any deterministic hash of the serialized
// key works for the warm-up predicate's jitter, since it's only used to
// spread concurrent writers' trigger points, not for equality.
func rowKeyHash(serializedKey []byte) int32 {
	h := fnv.New32a()
	h.Write(serializedKey)
	return int32(h.Sum32())
}
