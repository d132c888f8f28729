package cassandra

import (
	"time"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog"

	"github.com/zalando-zmon/kairosdb/internal/config"
)

// Table and string-index scope names fixed by the schema (spec.md §3, §6).
const (
	tableDataPoints          = "data_points"
	tableRowTimeKeyIndex     = "row_time_key_index"
	tableRowTimeKeySplitIndex = "row_time_key_split_index"
	tableStringIndex         = "string_index"

	stringIndexScopeMetricNames = "metric_names"
	stringIndexScopeTagNames    = "tag_names"

	stringIndexMarker byte = 0x00
)

// Session wraps a single long-lived gocql session, owned by the engine
// and closed on engine shutdown (spec.md §5 "Shared resources: a single
// long-lived session handle owned by the engine"). Prepared statements
// are bound per call, never shared as mutable objects; gocql's own
// Session.Query already handles statement preparation/caching, so this
// wrapper only fixes consistency levels per statement kind, matching
// §4.9's "resolved at statement preparation time."
type Session struct {
	cql          *gocql.Session
	consistency  ConsistencyPolicy
	logger       zerolog.Logger
}

// NewSession dials the configured Cassandra cluster and returns a ready
// Session. Close must be called on shutdown.
func NewSession(cfg config.CassandraConfig, consistency ConsistencyPolicy, logger zerolog.Logger) (*Session, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = consistency.Read
	cluster.ConnectTimeout = time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond
	cluster.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	if cfg.Datacenter != "" {
		cluster.PoolConfig.HostSelectionPolicy = gocql.DCAwareRoundRobinPolicy(cfg.Datacenter)
	}

	cql, err := cluster.CreateSession()
	if err != nil {
		return nil, newDatastoreError("create cassandra session", err)
	}

	return &Session{
		cql:         cql,
		consistency: consistency,
		logger:      logger.With().Str("component", "cassandra.session").Logger(),
	}, nil
}

// Close releases the underlying session. It is the last component torn
// down on engine shutdown (shutdown.PrioritySession).
func (s *Session) Close() error {
	s.cql.Close()
	return nil
}

func (s *Session) queryWith(level gocql.Consistency, stmt string, args ...interface{}) *gocql.Query {
	return s.cql.Query(stmt, args...).Consistency(level)
}

// dataInsert executes the prepared data-point insert: (key, column,
// value, ttl).
func (s *Session) dataInsert(key []byte, column uint32, value []byte, ttlSeconds int) error {
	stmt := `INSERT INTO ` + tableDataPoints + ` (key, column1, value) VALUES (?, ?, ?) USING TTL ?`
	q := s.queryWith(s.consistency.WriteDataPoint, stmt, key, column, value, ttlSeconds)
	return newDatastoreError("insert data point", q.Exec())
}

// globalIndexInsert executes the prepared global-index insert:
// (metric_bytes, serialized_key, row_time, ttl).
func (s *Session) globalIndexInsert(metricBytes, serializedKey []byte, rowTime int64, ttlSeconds int) error {
	stmt := `INSERT INTO ` + tableRowTimeKeyIndex + ` (key, column1, time_bucket) VALUES (?, ?, ?) USING TTL ?`
	q := s.queryWith(s.consistency.WriteMeta, stmt, metricBytes, serializedKey, rowTime, ttlSeconds)
	return newDatastoreError("insert global index row", q.Exec())
}

// splitIndexInsert executes the prepared split-index insert: (metric_name,
// tag_name, tag_value, serialized_key, row_time, ttl).
func (s *Session) splitIndexInsert(metricName, tagName, tagValue string, serializedKey []byte, rowTime int64, ttlSeconds int) error {
	stmt := `INSERT INTO ` + tableRowTimeKeySplitIndex + ` (metric_name, tag_name, tag_value, column1, time_bucket) VALUES (?, ?, ?, ?, ?) USING TTL ?`
	q := s.queryWith(s.consistency.WriteMeta, stmt, metricName, tagName, tagValue, serializedKey, rowTime, ttlSeconds)
	return newDatastoreError("insert split index row", q.Exec())
}

// stringInsert executes the prepared string-index insert: (scope_bytes,
// value_string, default_ttl).
func (s *Session) stringInsert(scope, value string, ttlSeconds int) error {
	stmt := `INSERT INTO ` + tableStringIndex + ` (key, column1, value) VALUES (?, ?, ?) USING TTL ?`
	q := s.queryWith(s.consistency.WriteMeta, stmt, []byte(scope), value, []byte{stringIndexMarker}, ttlSeconds)
	return newDatastoreError("insert string index row", q.Exec())
}

// stringQuery executes the prepared string-index query: (scope_bytes),
// invoking onValue for each returned clustering value in the order
// gocql's iterator returns them.
func (s *Session) stringQuery(scope string, onValue func(value string) error) error {
	stmt := `SELECT column1 FROM ` + tableStringIndex + ` WHERE key = ?`
	iter := s.queryWith(s.consistency.Read, stmt, []byte(scope)).Iter()
	var value string
	for iter.Scan(&value) {
		if err := onValue(value); err != nil {
			iter.Close()
			return err
		}
	}
	return newDatastoreError("query string index", iter.Close())
}

// globalIndexQuery executes the prepared global index query:
// (metric_bytes, bucket, limit), invoking onRow for each row-key blob.
func (s *Session) globalIndexQuery(metricBytes []byte, bucket int64, limit int, onRow func(rowKeyBytes []byte) error) error {
	stmt := `SELECT column1 FROM ` + tableRowTimeKeyIndex + ` WHERE key = ? AND time_bucket = ? LIMIT ?`
	iter := s.queryWith(s.consistency.Read, stmt, metricBytes, bucket, limit).Iter()
	var rowKeyBytes []byte
	for iter.Scan(&rowKeyBytes) {
		if err := onRow(rowKeyBytes); err != nil {
			iter.Close()
			return err
		}
	}
	return newDatastoreError("query global index", iter.Close())
}

// splitIndexQuery executes the prepared split index query: (metric_name,
// tag_name, tag_value, bucket, limit).
func (s *Session) splitIndexQuery(metricName, tagName, tagValue string, bucket int64, limit int, onRow func(rowKeyBytes []byte) error) error {
	stmt := `SELECT column1 FROM ` + tableRowTimeKeySplitIndex + ` WHERE metric_name = ? AND tag_name = ? AND tag_value = ? AND time_bucket = ? LIMIT ?`
	iter := s.queryWith(s.consistency.Read, stmt, metricName, tagName, tagValue, bucket, limit).Iter()
	var rowKeyBytes []byte
	for iter.Scan(&rowKeyBytes) {
		if err := onRow(rowKeyBytes); err != nil {
			iter.Close()
			return err
		}
	}
	return newDatastoreError("query split index", iter.Close())
}

// dataRangeQuery executes the prepared data-point range query: (key,
// column_lower, column_upper), ordered ascending or descending to match
// the table's clustering order (spec.md §6 "Clustering order on the data
// table is DESCENDING by column; implementations must request both
// ascending and descending slices."). upper is exclusive, matching the
// original QUERY_DATA_POINTS's `column1 < ?` — callers must pass a bound
// computed by encodeColumnUpperBoundExclusive, not a plain encoded column
// for the query's end timestamp.
func (s *Session) dataRangeQuery(key []byte, lower, upper uint32, order SortOrder, limit int, onColumn func(column uint32, value []byte) error) error {
	direction := "ASC"
	if order == OrderDescending {
		direction = "DESC"
	}
	stmt := `SELECT column1, value FROM ` + tableDataPoints + ` WHERE key = ? AND column1 >= ? AND column1 < ? ORDER BY column1 ` + direction + ` LIMIT ?`
	iter := s.queryWith(s.consistency.Read, stmt, key, lower, upper, limit).Iter()
	var column uint32
	var value []byte
	for iter.Scan(&column, &value) {
		if err := onColumn(column, value); err != nil {
			iter.Close()
			return err
		}
	}
	return newDatastoreError("query data range", iter.Close())
}

// deletePartitionData removes a full partition from the data table (used
// by the full-row delete path, spec.md §4.8).
func (s *Session) deletePartitionData(key []byte) error {
	stmt := `DELETE FROM ` + tableDataPoints + ` WHERE key = ?`
	return newDatastoreError("delete data partition", s.queryWith(s.consistency.WriteMeta, stmt, key).Exec())
}

// deleteGlobalIndexRow removes one clustering row from the global index
// (used by the full-row delete path, spec.md §4.8).
func (s *Session) deleteGlobalIndexRow(metricBytes, serializedKey []byte) error {
	stmt := `DELETE FROM ` + tableRowTimeKeyIndex + ` WHERE key = ? AND column1 = ?`
	return newDatastoreError("delete global index row", s.queryWith(s.consistency.WriteMeta, stmt, metricBytes, serializedKey).Exec())
}

// deleteSplitIndexRow removes one clustering row from the split index.
func (s *Session) deleteSplitIndexRow(metricName, tagName, tagValue string, serializedKey []byte) error {
	stmt := `DELETE FROM ` + tableRowTimeKeySplitIndex + ` WHERE metric_name = ? AND tag_name = ? AND tag_value = ? AND column1 = ?`
	return newDatastoreError("delete split index row", s.queryWith(s.consistency.WriteMeta, stmt, metricName, tagName, tagValue, serializedKey).Exec())
}

// deleteColumn removes a single column from a partition (used by the
// partial-row delete path, spec.md §4.8).
func (s *Session) deleteColumn(key []byte, column uint32) error {
	stmt := `DELETE FROM ` + tableDataPoints + ` WHERE key = ? AND column1 = ?`
	return newDatastoreError("delete data point column", s.queryWith(s.consistency.WriteMeta, stmt, key, column).Exec())
}
