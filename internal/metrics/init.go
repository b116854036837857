package metrics

// InitializeMetrics pre-populates the expected label combinations so that
// every series appears in the first textfile write.
func InitializeMetrics() {
	for _, state := range []string{"finished", "cancelled", "failed"} {
		IndexerScansTotal.WithLabelValues(state)
	}
	for _, kind := range []string{"walk", "stat", "cache_lookup", "cache_store", "thumbnail", "watch"} {
		IndexerErrors.WithLabelValues(kind)
	}
	for _, op := range []string{"create", "write", "remove", "rename"} {
		IndexerWatcherEventsTotal.WithLabelValues(op)
	}

	for _, backend := range []string{"imaging", "vips"} {
		ThumbnailGenerationsTotal.WithLabelValues(backend, "success")
		ThumbnailGenerationsTotal.WithLabelValues(backend, "error")
		ThumbnailGenerationDuration.WithLabelValues(backend)
	}
	for _, format := range []string{"jpeg", "png", "gif", "webp", "bmp", "unknown"} {
		ThumbnailImageDecodeByFormat.WithLabelValues(format)
	}

	for _, category := range []string{"all", "filter", "sort", "group", "general"} {
		PluginsLoaded.WithLabelValues(category)
	}
	for _, stage := range []string{"filter", "sort", "group", "run"} {
		PluginInvocationsTotal.WithLabelValues(stage, "success")
		PluginInvocationsTotal.WithLabelValues(stage, "error")
		PipelineStageDuration.WithLabelValues(stage)
		PipelineItems.WithLabelValues(stage)
	}

	for _, status := range []string{"success", "error"} {
		AnalysisRunsTotal.WithLabelValues(status)
	}

	for _, op := range []string{"initialize_schema", "lookup", "upsert", "stats", "prune",
		"vacuum", "store_analysis", "load_analysis", "save_rule_set", "load_rule_set", "workspace"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}
	for _, table := range []string{"images", "workspaces", "analysis_results", "rule_sets"} {
		CacheEntries.WithLabelValues(table)
	}

	volumes := []string{"images", "plugins", "cache", "unknown"}
	for _, vol := range volumes {
		for _, op := range []string{"stat", "open", "readdir", "read"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}
}
