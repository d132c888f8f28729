package cassandra

import (
	"context"
	"math/rand"
	"sort"

	"github.com/zalando-zmon/kairosdb/internal/metrics"
)

// criticalReadCountThreshold and criticalFilteredCountThreshold mark a
// query as critical for downstream observability once either count is
// exceeded.
const (
	criticalReadCountThreshold     = 5000
	criticalFilteredCountThreshold = 100
)

// Planner chooses between the global and split indexes, fans out the
// concurrent index lookups, filters candidates by tag glob, and enforces
// the read/filtered ceilings.
type Planner struct {
	session       store
	counters      *metrics.Counters
	maxConcurrent int64
	samplingPct   int
	tracer        tracer
}

// NewPlanner builds a Planner bound to session. maxConcurrent bounds the
// number of in-flight index lookups; samplingPercentage is the chance
// (0-100) a non-critical query is tagged for sampling metadata.
func NewPlanner(session store, counters *metrics.Counters, maxConcurrent int64, samplingPercentage int, tr tracer) *Planner {
	return &Planner{session: session, counters: counters, maxConcurrent: maxConcurrent, samplingPct: samplingPercentage, tracer: tr}
}

// candidateKeys resolves the row keys matching a query, consulting
// plugins first and falling back to the built-in global/split index
// choice.
func (p *Planner) candidateKeys(ctx context.Context, q *Query, indexTags []string, readWidthMS, writeWidthMS int64, maxRowsForKeysQuery, maxRowKeysForQuery int) ([]RowKey, error) {
	ctx, end := p.tracer.startSpan(ctx, "query_index")
	defer end()

	for _, plugin := range q.Plugins {
		keys, err := plugin.CandidateKeys(ctx, q)
		if err != nil {
			return nil, err
		}
		if keys != nil {
			return keys, nil
		}
	}

	splitField, splitValues := chooseSplitField(indexTags, q.TagFilters)

	buckets := bucketRange(q.StartMS, q.EndMS, readWidthMS, writeWidthMS)

	globPatterns := make(map[string][]compiledGlob, len(q.TagFilters))
	for tag, patterns := range q.TagFilters {
		globPatterns[tag] = compileGlobs(patterns)
	}

	if splitField != "" && len(splitValues) > 0 {
		index := "row_time_key_split_index:" + splitField
		return p.runLookups(ctx, q, index, maxRowsForKeysQuery, maxRowKeysForQuery, globPatterns, splitBucketLookups(p.session, q.MetricName, splitField, splitValues, buckets, maxRowsForKeysQuery+1))
	}

	index := "row_time_key_index"
	return p.runLookups(ctx, q, index, maxRowsForKeysQuery, maxRowKeysForQuery, globPatterns, globalBucketLookups(p.session, q.MetricName, buckets, maxRowsForKeysQuery+1))
}

// chooseSplitField picks the indexable tag with the smallest non-empty,
// wildcard-free filter set to drive the split index, preferring the
// first eligible tag over a later one of equal size. The two half-terms
// of the accept test are not redundant: currentSetIsSmaller replaces an
// already selected candidate only with a strictly smaller set (so equal
// sizes keep the earlier tag), while currentSetIsNotEmpty
// accepts the very first non-empty candidate when none has been chosen
// yet (at which point useSplitSet is still empty and "smaller than
// empty" can never be true).
func chooseSplitField(indexTags []string, filterTags map[string][]string) (field string, values []string) {
	var useSplitField string
	var useSplitSet []string

	for _, tag := range indexTags {
		currentSet, ok := filterTags[tag]
		if !ok {
			continue
		}
		currentSetIsSmaller := len(currentSet) < len(useSplitSet)
		currentSetIsNotEmpty := len(currentSet) > 0 && len(useSplitSet) == 0
		currentSetHasNoWildcards := true
		for _, v := range currentSet {
			if hasWildcard(v) {
				currentSetHasNoWildcards = false
				break
			}
		}
		if (currentSetIsSmaller || currentSetIsNotEmpty) && currentSetHasNoWildcards {
			useSplitSet = currentSet
			useSplitField = tag
		}
	}

	return useSplitField, useSplitSet
}

// runLookups fans out the given bucket lookups, filters each returned
// row key against the query's tag globs, enforces the read-rows and
// filtered-rows ceilings incrementally, and attaches criticality/sampling
// metadata to the query.
func (p *Planner) runLookups(ctx context.Context, q *Query, index string, maxRowsForKeysQuery, maxRowKeysForQuery int, globPatterns map[string][]compiledGlob, lookups []bucketLookup) ([]RowKey, error) {
	results := fanOutLookups(ctx, lookups, p.maxConcurrent)

	var matched []RowKey
	readCount := 0

	for res := range results {
		if res.err != nil {
			return nil, res.err
		}

		for _, key := range res.keys {
			readCount++
			if readCount > maxRowsForKeysQuery {
				p.counters.ReadRowsLimitExceeded.Add(1)
				return nil, &MaxRowKeysForQueryExceededError{
					Metric: q.MetricName, Index: index, Limit: maxRowsForKeysQuery,
					ReadCount: readCount, FilteredCount: len(matched), Kind: "read",
				}
			}

			if matchesAllFilters(key.Tags, globPatterns) {
				matched = append(matched, key)
			}
		}

		if len(matched) > maxRowKeysForQuery {
			p.counters.FilteredRowsLimitExceeded.Add(1)
			return nil, &MaxRowKeysForQueryExceededError{
				Metric: q.MetricName, Index: index, Limit: maxRowKeysForQuery,
				ReadCount: readCount, FilteredCount: len(matched), Kind: "filtered",
			}
		}
	}

	isCritical := readCount > criticalReadCountThreshold || len(matched) > criticalFilteredCountThreshold
	q.Meta = &QueryMetadata{
		Classification: classificationOf(isCritical),
		ReadCount:      readCount,
		Index:          index,
		Sampled:        isCritical || rand.Intn(100) < p.samplingPct,
	}

	return matched, nil
}

func classificationOf(critical bool) string {
	if critical {
		return "critical"
	}
	return "simple"
}

// matchesAllFilters reports whether a row key's tags satisfy every
// filter tag: for each filter tag at least one glob must match the row's
// value, and a missing tag is rejected.
func matchesAllFilters(tags Tags, globPatterns map[string][]compiledGlob) bool {
	for tag, globs := range globPatterns {
		value, ok := tags[tag]
		if !ok || !matchesAny(globs, value) {
			return false
		}
	}
	return true
}

// globalBucketLookups builds one lookup per bucket against the global
// index, keyed by metric_name bytes.
func globalBucketLookups(session store, metricName string, buckets []int64, perBucketLimit int) []bucketLookup {
	metricBytes := []byte(metricName)
	serializer := RowKeySerializer{}

	lookups := make([]bucketLookup, len(buckets))
	for i, bucket := range buckets {
		bucket := bucket
		lookups[i] = bucketLookup{
			bucket: bucket,
			fetch: func(ctx context.Context) ([]RowKey, error) {
				var keys []RowKey
				err := session.globalIndexQuery(metricBytes, bucket, perBucketLimit, func(rowKeyBytes []byte) error {
					key, err := serializer.FromBytes(rowKeyBytes)
					if err != nil {
						return newDatastoreError("decode global index row key", err)
					}
					keys = append(keys, key)
					return nil
				})
				return keys, err
			},
		}
	}
	return lookups
}

// splitBucketLookups builds one lookup per (bucket, tag value) pair
// against the split index.
func splitBucketLookups(session store, metricName, tagName string, tagValues []string, buckets []int64, perBucketLimit int) []bucketLookup {
	serializer := RowKeySerializer{}

	lookups := make([]bucketLookup, 0, len(buckets)*len(tagValues))
	for _, bucket := range buckets {
		for _, value := range tagValues {
			bucket, value := bucket, value
			lookups = append(lookups, bucketLookup{
				bucket: bucket,
				fetch: func(ctx context.Context) ([]RowKey, error) {
					var keys []RowKey
					err := session.splitIndexQuery(metricName, tagName, value, bucket, perBucketLimit, func(rowKeyBytes []byte) error {
						key, err := serializer.FromBytes(rowKeyBytes)
						if err != nil {
							return newDatastoreError("decode split index row key", err)
						}
						keys = append(keys, key)
						return nil
					})
					return keys, err
				},
			})
		}
	}

	sort.Slice(lookups, func(i, j int) bool { return lookups[i].bucket < lookups[j].bucket })
	return lookups
}
