package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Indexer metrics
var (
	IndexerScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pic_analyzer_indexer_scans_total",
			Help: "Total number of scan jobs by terminal state",
		},
		[]string{"state"},
	)

	IndexerScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pic_analyzer_indexer_scan_duration_seconds",
			Help:    "Duration of scan jobs in seconds",
			Buckets: durationBuckets,
		},
	)

	IndexerFilesDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pic_analyzer_indexer_files_discovered_total",
			Help: "Total number of image files discovered by scans",
		},
	)

	IndexerFoldersVisited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pic_analyzer_indexer_folders_visited_total",
			Help: "Total number of directories visited by scans",
		},
	)

	IndexerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pic_analyzer_indexer_errors_total",
			Help: "Total number of indexer errors by kind",
		},
		[]string{"kind"},
	)

	IndexerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pic_analyzer_indexer_running",
			Help: "Number of scan jobs currently running",
		},
	)

	IndexerWatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pic_analyzer_indexer_watcher_events_total",
			Help: "Total number of filesystem watcher events by operation",
		},
		[]string{"op"},
	)

	IndexerWatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pic_analyzer_indexer_watched_directories",
			Help: "Number of directories currently being watched",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pic_analyzer_thumbnail_cache_hits_total",
			Help: "Total number of thumbnails served from the cache",
		},
	)

	ThumbnailCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pic_analyzer_thumbnail_cache_misses_total",
			Help: "Total number of thumbnails that had to be generated",
		},
	)

	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pic_analyzer_thumbnail_generations_total",
			Help: "Total number of thumbnail generations by backend and status",
		},
		[]string{"backend", "status"},
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pic_analyzer_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: durationBuckets,
		},
		[]string{"backend"},
	)

	ThumbnailImageDecodeByFormat = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pic_analyzer_thumbnail_decode_by_format_total",
			Help: "Total number of source images decoded by format",
		},
		[]string{"format"},
	)
)

// Plugin registry metrics
var (
	PluginsLoaded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pic_analyzer_plugins_loaded",
			Help: "Number of registered plugins by category",
		},
		[]string{"category"},
	)

	PluginLoadErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pic_analyzer_plugin_load_errors_total",
			Help: "Total number of plugin units that failed to load",
		},
	)

	PluginConflicts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pic_analyzer_plugin_conflicts",
			Help: "Number of plugin names excluded because of duplicate definitions",
		},
	)

	PluginInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pic_analyzer_plugin_invocations_total",
			Help: "Total number of plugin invocations by stage and status",
		},
		[]string{"stage", "status"},
	)
)

// Pipeline metrics
var (
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pic_analyzer_pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: durationBuckets,
		},
		[]string{"stage"},
	)

	PipelineItems = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pic_analyzer_pipeline_items",
			Help:    "Number of items leaving each pipeline stage",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"stage"},
	)
)

// Analysis metrics
var (
	AnalysisRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pic_analyzer_analysis_runs_total",
			Help: "Total number of per-image analysis runs by status",
		},
		[]string{"status"},
	)

	AnalysisMemoHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pic_analyzer_analysis_memo_hits_total",
			Help: "Total number of analysis results served from memory or the cache database",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pic_analyzer_db_queries_total",
			Help: "Total number of cache database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pic_analyzer_db_query_duration_seconds",
			Help:    "Cache database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pic_analyzer_db_size_bytes",
			Help: "Cache database file size in bytes",
		},
		[]string{"file"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pic_analyzer_cache_entries",
			Help: "Number of rows in the cache database by table",
		},
		[]string{"table"},
	)

	CacheThumbnailBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pic_analyzer_cache_thumbnail_bytes",
			Help: "Total size of cached thumbnails in bytes",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pic_analyzer_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pic_analyzer_filesystem_operation_errors_total",
			Help: "Total number of failed filesystem operations",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pic_analyzer_filesystem_retry_attempts_total",
			Help: "Total number of retries after a stale NFS handle",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pic_analyzer_filesystem_retry_success_total",
			Help: "Total number of operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pic_analyzer_filesystem_retry_failures_total",
			Help: "Total number of operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pic_analyzer_filesystem_stale_errors_total",
			Help: "Total number of ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pic_analyzer_filesystem_retry_duration_seconds",
			Help:    "Total time spent in an operation including retries",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pic_analyzer_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}

// WriteTextfile writes every registered metric to path in the Prometheus
// text exposition format, for node_exporter's textfile collector.
// An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
