// Package startup loads configuration and logs application initialization.
//
// # Configuration
//
// [LoadConfig] reads values through viper, in increasing priority:
//   - built-in defaults ([SetDefaults])
//   - a config file: the path given with --config, or config.yaml / config.toml
//     in $XDG_CONFIG_HOME/pic-analyzer
//   - environment variables: PIC_<KEY> (dots become underscores, e.g.
//     PIC_TRACING_ENABLED), plus PLUGINS_DIR, DATABASE_PATH, LOG_LEVEL and
//     METRICS_FILE
//   - values set directly on the viper instance, such as bound CLI flags
//
// Keys:
//   - plugins_dir: plugin units to discover (default: $XDG_DATA_HOME/pic-analyzer/plugins)
//   - database_path: thumbnail and analysis cache (default: $XDG_CACHE_HOME/pic-analyzer/cache.db)
//   - thumbnail_size: thumbnail edge in pixels (default: 150)
//   - thumbnail_backend: imaging or vips (default: imaging)
//   - skip_hidden: ignore dot-files while scanning and watching (default: false)
//   - event_buffer: scan event channel capacity (default: 32)
//   - analysis_workers: concurrent analysis; 0 sizes from GOMAXPROCS
//   - analysis_ttl: how long plugin results stay memoized in memory (default: 10m)
//   - watch_debounce, watch_poll: watch mode timing as Go durations
//   - metrics_file: Prometheus textfile written on exit (default: off)
//   - log_level: debug, info, warn or error
//   - tracing.enabled, tracing.exporter, tracing.file_path: span export
//
// # Directory Setup
//
// The database directory is created if needed and must be writable. The
// plugins directory is created when missing. The metrics and trace output
// directories are optional; when they are not writable the feature is
// turned off with a warning.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
package startup
