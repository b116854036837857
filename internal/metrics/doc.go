// Package metrics provides Prometheus instrumentation for pic-analyzer.
//
// Every metric is registered on the default registry with promauto and is
// prefixed with "pic_analyzer_". The application is a command-line tool, so
// metrics are not scraped over HTTP. Instead, when metrics_file is set, the
// [Collector] writes the default registry to that path in the text
// exposition format, ready for node_exporter's textfile collector.
//
// # Metric Categories
//
// ## Indexer Metrics
//
// Track folder scans and the change watcher:
//   - IndexerScansTotal: Counter of scans by final state (finished, cancelled, failed)
//   - IndexerScanDuration: Histogram of scan duration
//   - IndexerFilesDiscovered: Counter of images reported to consumers
//   - IndexerFoldersVisited: Counter of directories walked
//   - IndexerErrors: Counter of errors by kind (walk, stat, cache_lookup, cache_store, thumbnail, watch)
//   - IndexerIsRunning: Gauge that is 1 while a scan runs
//   - IndexerWatcherEventsTotal: Counter of filesystem events by operation
//   - IndexerWatchedDirectories: Gauge of directories under watch
//
// ## Thumbnail Metrics
//
//   - ThumbnailCacheHits, ThumbnailCacheMisses: Counters of cache lookups
//   - ThumbnailGenerationsTotal: Counter by backend and status
//   - ThumbnailGenerationDuration: Histogram by backend
//   - ThumbnailImageDecodeByFormat: Counter of decoded images by format
//
// ## Plugin and Pipeline Metrics
//
//   - PluginsLoaded: Gauge of registered plugins by category
//   - PluginLoadErrors: Counter of units or definitions that failed to load
//   - PluginConflicts: Gauge of names excluded because of duplicates
//   - PluginInvocationsTotal: Counter of plugin calls by stage and status
//   - PipelineStageDuration: Histogram by stage
//   - PipelineItems: Histogram of items leaving each stage
//   - AnalysisRunsTotal, AnalysisMemoHits: analysis runs and memo reuse
//
// ## Database Metrics
//
//   - DBQueryTotal, DBQueryDuration: queries by operation
//   - DBSizeBytes: database file sizes (main, wal, shm)
//   - CacheEntries: row counts by table
//   - CacheThumbnailBytes: total stored thumbnail size
//
// ## Filesystem Metrics
//
// Recorded through [NewFilesystemObserver] for the retrying filesystem
// helpers: operation duration, errors, retry attempts, successes and
// failures, and stale handle errors.
//
// ## Application Info
//
//   - AppInfo: constant 1 labelled with version, commit and Go version
//
// # Collector
//
// [Collector] refreshes the database gauges from a [StatsProvider] on an
// interval and once more on Stop, rewriting the textfile each time:
//
//	collector := metrics.NewCollector(db, db.Path(), "/var/lib/node_exporter/pic.prom", time.Minute)
//	collector.Start()
//	defer collector.Stop()
//
// # Prometheus Queries
//
// Cache hit ratio:
//
//	rate(pic_analyzer_thumbnail_cache_hits_total[1h])
//	  / (rate(pic_analyzer_thumbnail_cache_hits_total[1h]) + rate(pic_analyzer_thumbnail_cache_misses_total[1h]))
//
// Plugin failures by pipeline stage:
//
//	sum by (stage) (pic_analyzer_plugin_invocations_total{status="error"})
package metrics
