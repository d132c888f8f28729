package cassandra

// IndexableTags resolves the list of tag names to maintain split-index
// entries for, given a metric name (spec.md §4.5): the per-metric
// override if one is configured, otherwise the global list. Order is
// preserved from configuration since callers only iterate it; inclusion
// is a set test.
func IndexableTags(metricName string, global []string, overrides map[string][]string) []string {
	if tags, ok := overrides[metricName]; ok {
		return tags
	}
	return global
}
