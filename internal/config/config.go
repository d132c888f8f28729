// Package config loads the storage engine's configuration the way the
// teacher loads its own: Viper defaults, overridable by ARC-style
// environment variables (here KAIROSDB_-prefixed) and an optional TOML
// file, parsed once at startup into a typed Config struct.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration recognized by the storage engine, per
// spec.md §6 "Configuration".
type Config struct {
	Cassandra   CassandraConfig
	RowWidth    RowWidthConfig
	Index       IndexConfig
	Limits      LimitsConfig
	Consistency ConsistencyConfig
	WarmingUp   WarmingUpConfig
	Log         LogConfig
	Sampling    SamplingConfig
	Engine      EngineConfig
	Hostname    string
}

// CassandraConfig describes how to reach the Cassandra cluster and which
// keyspace to bind the prepared statements against.
type CassandraConfig struct {
	Hosts              []string
	Keyspace           string
	Datacenter         string
	ConnectTimeoutMS   int
	TimeoutMS          int
	DatapointTTLSeconds int // default data TTL when caller passes 0
}

// RowWidthConfig holds the write/read bucket widths in milliseconds.
// Read width must be >= write width; both are expected to be powers of
// the chosen timestamp resolution (spec.md §6).
type RowWidthConfig struct {
	WriteMS int64
	ReadMS  int64
}

// IndexConfig resolves the indexable-tag policy from spec.md §4.5.
type IndexConfig struct {
	// TagList is the global list of indexable tag names (comma-separated
	// in config, parsed here into a slice).
	TagList []string
	// MetricTagList is the raw "metric=tag1,tag2;metric2=tagX" override
	// grammar, already parsed into metric -> ordered tag list.
	MetricTagList map[string][]string
}

// LimitsConfig holds the planner's read/filter ceilings.
type LimitsConfig struct {
	MaxRowsForKeysQuery int // read_rows_limit
	MaxRowKeysForQuery  int // filtered_rows_limit
}

// ConsistencyConfig resolves per-operation CQL consistency levels
// (spec.md §4.9).
type ConsistencyConfig struct {
	Read              string
	WriteDataPoint    string
	WriteMeta         string
}

// WarmingUpConfig controls next-bucket cache warm-up (spec.md §4.4 step 4).
type WarmingUpConfig struct {
	Enabled              bool
	HeatingIntervalMinutes int
	RowIntervalMinutes     int
}

// LogConfig controls the zerolog setup.
type LogConfig struct {
	Level  string
	Format string
}

// SamplingConfig controls query-sampling metadata tagging (spec.md §9).
type SamplingConfig struct {
	QueryPercentage int // 0-100
}

// EngineConfig holds the operational knobs not named directly by a
// spec.md configuration key but required to construct the datastore:
// known-key cache sizing, the read-path memory ceiling, and the index
// lookup fan-out width.
type EngineConfig struct {
	CacheSize            int
	MemoryCeilingBytes    uint64
	MaxConcurrentLookups int64
}

// Load reads configuration from environment and an optional TOML file,
// falling back to the defaults set in setDefaults.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("KAIROSDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("kairosdb")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/kairosdb/")
	v.AddConfigPath("$HOME/.kairosdb/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Cassandra: CassandraConfig{
			Hosts:               v.GetStringSlice("cassandra.hosts"),
			Keyspace:            v.GetString("cassandra.keyspace"),
			Datacenter:          v.GetString("cassandra.datacenter"),
			ConnectTimeoutMS:    v.GetInt("cassandra.connect_timeout_ms"),
			TimeoutMS:           v.GetInt("cassandra.timeout_ms"),
			DatapointTTLSeconds: v.GetInt("cassandra.datapoint_ttl_seconds"),
		},
		RowWidth: RowWidthConfig{
			WriteMS: v.GetInt64("row_width.write_ms"),
			ReadMS:  v.GetInt64("row_width.read_ms"),
		},
		Index: IndexConfig{
			TagList:       parseIndexTagList(v.GetString("index.tag_list")),
			MetricTagList: parseMetricIndexTagMap(v.GetString("index.metric_tag_list")),
		},
		Limits: LimitsConfig{
			MaxRowsForKeysQuery: v.GetInt("limits.max_rows_for_keys_query"),
			MaxRowKeysForQuery:  v.GetInt("limits.max_row_keys_for_query"),
		},
		Consistency: ConsistencyConfig{
			Read:           v.GetString("consistency.read_level"),
			WriteDataPoint: v.GetString("consistency.write_level_datapoint"),
			WriteMeta:      v.GetString("consistency.write_level_meta"),
		},
		WarmingUp: WarmingUpConfig{
			Enabled:                v.GetBool("warming_up.enabled"),
			HeatingIntervalMinutes: v.GetInt("warming_up.heating_interval_minutes"),
			RowIntervalMinutes:     v.GetInt("warming_up.row_interval_minutes"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Sampling: SamplingConfig{
			QueryPercentage: v.GetInt("sampling.query_sampling_percentage"),
		},
		Engine: EngineConfig{
			CacheSize:            v.GetInt("engine.cache_size"),
			MemoryCeilingBytes:   uint64(v.GetInt64("engine.memory_ceiling_bytes")),
			MaxConcurrentLookups: v.GetInt64("engine.max_concurrent_lookups"),
		},
		Hostname: v.GetString("hostname"),
	}

	if cfg.RowWidth.ReadMS < cfg.RowWidth.WriteMS {
		return nil, fmt.Errorf("row_width.read_ms (%d) must be >= row_width.write_ms (%d)",
			cfg.RowWidth.ReadMS, cfg.RowWidth.WriteMS)
	}

	return cfg, nil
}

// parseIndexTagList parses the comma-separated `index_tag_list` option.
func parseIndexTagList(list string) []string {
	var out []string
	for _, s := range strings.Split(list, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseMetricIndexTagMap parses the `metric=tag1,tag2;metric2=tagX` grammar
// from `metric_index_tag_list`. Malformed entries are silently dropped, per
// spec.md §6.
func parseMetricIndexTagMap(list string) map[string][]string {
	out := make(map[string][]string)
	for _, entry := range strings.Split(list, ";") {
		kv := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			continue
		}
		metric := strings.TrimSpace(kv[0])
		for _, tag := range strings.Split(kv[1], ",") {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				out[metric] = append(out[metric], tag)
			}
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cassandra.hosts", []string{"127.0.0.1"})
	v.SetDefault("cassandra.keyspace", "kairosdb")
	v.SetDefault("cassandra.datacenter", "")
	v.SetDefault("cassandra.connect_timeout_ms", 5000)
	v.SetDefault("cassandra.timeout_ms", 10000)
	v.SetDefault("cassandra.datapoint_ttl_seconds", 0) // 0 = never expire

	v.SetDefault("row_width.write_ms", int64(1000*60*60*3))  // 3 hours, matches the reference default
	v.SetDefault("row_width.read_ms", int64(1000*60*60*3))

	v.SetDefault("index.tag_list", "")
	v.SetDefault("index.metric_tag_list", "")

	v.SetDefault("limits.max_rows_for_keys_query", 1024*10)
	v.SetDefault("limits.max_row_keys_for_query", 1024*10)

	v.SetDefault("consistency.read_level", "ONE")
	v.SetDefault("consistency.write_level_datapoint", "ONE")
	v.SetDefault("consistency.write_level_meta", "QUORUM")

	v.SetDefault("warming_up.enabled", false)
	v.SetDefault("warming_up.heating_interval_minutes", 60)
	v.SetDefault("warming_up.row_interval_minutes", 60)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("sampling.query_sampling_percentage", 0)

	v.SetDefault("engine.cache_size", 100_000)
	v.SetDefault("engine.memory_ceiling_bytes", int64(1<<30)) // 1 GiB
	v.SetDefault("engine.max_concurrent_lookups", int64(32))

	v.SetDefault("hostname", "localhost")
}
