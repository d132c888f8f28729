package cassandra

// store is the narrow seam the Planner, QueryRunner, and Datastore depend
// on instead of *Session directly, so tests can back them with an
// in-memory fake rather than dialing a real cluster. *Session implements
// it with its gocql-backed prepared statements; test doubles implement it
// with plain maps.
type store interface {
	dataInsert(key []byte, column uint32, value []byte, ttlSeconds int) error
	globalIndexInsert(metricBytes, serializedKey []byte, rowTime int64, ttlSeconds int) error
	splitIndexInsert(metricName, tagName, tagValue string, serializedKey []byte, rowTime int64, ttlSeconds int) error
	stringInsert(scope, value string, ttlSeconds int) error
	stringQuery(scope string, onValue func(value string) error) error
	globalIndexQuery(metricBytes []byte, bucket int64, limit int, onRow func(rowKeyBytes []byte) error) error
	splitIndexQuery(metricName, tagName, tagValue string, bucket int64, limit int, onRow func(rowKeyBytes []byte) error) error
	dataRangeQuery(key []byte, lower, upper uint32, order SortOrder, limit int, onColumn func(column uint32, value []byte) error) error
	deletePartitionData(key []byte) error
	deleteGlobalIndexRow(metricBytes, serializedKey []byte) error
	deleteSplitIndexRow(metricName, tagName, tagValue string, serializedKey []byte) error
	deleteColumn(key []byte, column uint32) error
	Close() error
}
