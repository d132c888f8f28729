package cassandra

import (
	"context"
	"sort"
)

// SortOrder is the requested output ordering for a query.
type SortOrder int

const (
	OrderAscending SortOrder = iota
	OrderDescending
)

// DataPoint is a single timestamped value, opaque to the engine beyond its
// DataType tag: value encoding is pluggable, so the engine only ever
// carries a byte payload tagged with the data type that produced it.
type DataPoint struct {
	Timestamp int64
	Value     []byte
	DataType  string
}

// Tags is a map of tag key/value pairs. The map itself is unordered;
// SortedKeys supplies the ascending key order that the row-key codec's
// order-dependent serialized form uses.
type Tags map[string]string

// SortedKeys returns the tag keys in ascending order.
func (t Tags) SortedKeys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RowKeyProvider is the narrow capability a query plugin advertises to
// short-circuit the built-in planner and supply candidate row keys of
// its own.
type RowKeyProvider interface {
	CandidateKeys(ctx context.Context, query *Query) ([]RowKey, error)
}

// Query describes a read (or delete) over the data model.
type Query struct {
	MetricName string
	StartMS    int64
	EndMS      int64
	// TagFilters maps a tag name to the set of glob patterns a matching
	// row's value for that tag must satisfy at least one of.
	TagFilters map[string][]string
	Limit      int // 0 = unlimited
	Order      SortOrder
	Plugins    []RowKeyProvider

	// Meta is populated by the planner's candidateKeys once the index
	// lookups complete; see QueryMetadata.
	Meta *QueryMetadata
}

// QueryMetadata records the planner's criticality/sampling decision for a
// query.
type QueryMetadata struct {
	Classification string // "critical" or "simple"
	ReadCount      int
	Index          string
	Sampled        bool
}

// QueryCallback receives points in batch order during a query run.
type QueryCallback interface {
	StartDataPointSet(dataType string, tags Tags)
	AddDataPoint(dp DataPoint) error
	EndDataPoints()
}
