package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zalando-zmon/kairosdb/internal/cassandra"
	"github.com/zalando-zmon/kairosdb/internal/config"
	"github.com/zalando-zmon/kairosdb/internal/logger"
	"github.com/zalando-zmon/kairosdb/internal/metrics"
	"github.com/zalando-zmon/kairosdb/internal/shutdown"
)

// Version is set at build time.
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", Version).Msg("Starting kairosdb storage engine...")

	metrics.Init(logger.Get("metrics"))

	shutdownCoordinator := shutdown.New(30*time.Second, logger.Get("shutdown"))

	consistency, err := cassandra.NewConsistencyPolicy(
		cfg.Consistency.Read,
		cfg.Consistency.WriteDataPoint,
		cfg.Consistency.WriteMeta,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid consistency configuration")
	}

	session, err := cassandra.NewSession(cfg.Cassandra, consistency, logger.Get("cassandra.session"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open Cassandra session")
	}
	shutdownCoordinator.Register("cassandra-session", session, shutdown.PrioritySession)

	store := cassandra.NewDatastore(session, cassandra.DatastoreConfig{
		WriteWidthMS:      cfg.RowWidth.WriteMS,
		ReadWidthMS:       cfg.RowWidth.ReadMS,
		DefaultTTLSeconds: cfg.Cassandra.DatapointTTLSeconds,

		WarmUpEnabled:                cfg.WarmingUp.Enabled,
		WarmUpHeatingIntervalMinutes: cfg.WarmingUp.HeatingIntervalMinutes,
		WarmUpRowIntervalMinutes:     cfg.WarmingUp.RowIntervalMinutes,

		IndexTagList:       cfg.Index.TagList,
		MetricTagOverrides: cfg.Index.MetricTagList,

		MaxRowsForKeysQuery: cfg.Limits.MaxRowsForKeysQuery,
		MaxRowKeysForQuery:  cfg.Limits.MaxRowKeysForQuery,

		CacheSize:          cfg.Engine.CacheSize,
		MemoryCeilingBytes: cfg.Engine.MemoryCeilingBytes,

		MaxConcurrentLookups:    cfg.Engine.MaxConcurrentLookups,
		QuerySamplingPercentage: cfg.Sampling.QueryPercentage,
	}, cassandra.LegacyCodec{}, nil, logger.Get("cassandra.datastore"))

	shutdownCoordinator.Register("write-path", cassandra.WritePathShutdown{Datastore: store}, shutdown.PriorityWritePath)
	shutdownCoordinator.Register("query-path", cassandra.QueryPathShutdown{Datastore: store}, shutdown.PriorityQueryPath)

	log.Info().
		Strs("hosts", cfg.Cassandra.Hosts).
		Str("keyspace", cfg.Cassandra.Keyspace).
		Int64("write_width_ms", cfg.RowWidth.WriteMS).
		Int64("read_width_ms", cfg.RowWidth.ReadMS).
		Bool("warming_up", cfg.WarmingUp.Enabled).
		Msg("Storage engine ready")

	// The HTTP/REST surface, query parsing, and aggregation pipeline that
	// drive this engine are external collaborators (out of scope here);
	// this process only owns the engine's lifecycle.

	shutdownCoordinator.WaitForSignal()
	if err := shutdownCoordinator.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Shutdown completed with errors")
		os.Exit(1)
	}
}
