package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pic-analyzer/internal/analysis"
	"pic-analyzer/internal/database"
	"pic-analyzer/internal/filesystem"
	"pic-analyzer/internal/indexer"
	"pic-analyzer/internal/logging"
	"pic-analyzer/internal/media"
	"pic-analyzer/internal/metrics"
	"pic-analyzer/internal/plugin"
	"pic-analyzer/internal/plugin/builtin"
	"pic-analyzer/internal/startup"
	"pic-analyzer/internal/tracing"
)

// App carries the configuration and the resources commands open lazily.
type App struct {
	v       *viper.Viper
	cfgFile string
	cfg     *startup.Config

	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader

	db        *database.Database
	registry  *plugin.Registry
	gen       media.Generator
	tracer    *tracing.Provider
	collector *metrics.Collector
	vips      bool
}

// NewApp returns an App writing to the process streams.
func NewApp() *App {
	return &App{v: viper.New(), stdout: os.Stdout, stderr: os.Stderr, stdin: os.Stdin}
}

// Execute runs the root command with os.Args.
func Execute(ctx context.Context) error {
	app := NewApp()
	defer app.Close()
	return app.Command().ExecuteContext(ctx)
}

// Command builds the command tree for a.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "pic-analyzer",
		Short: "Filter, sort and group the images in a folder",
		Long: `pic-analyzer indexes the images in a folder, caches their thumbnails and
runs them through filter, sort and group plugins described by a rule file.

Plugins are Lua units under the plugins directory plus a built-in set.`,
		Version:           startup.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.Close()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetIn(a.stdin)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default $XDG_CONFIG_HOME/pic-analyzer/config.yaml)")
	flags.String("plugins-dir", "", "directory of plugin units")
	flags.String("database", "", "cache database path")
	flags.Int("thumbnail-size", 0, "thumbnail edge in pixels")
	flags.String("backend", "", "thumbnail backend: imaging or vips")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("metrics-file", "", "write Prometheus metrics to this textfile on exit")

	for key, name := range map[string]string{
		"plugins_dir":       "plugins-dir",
		"database_path":     "database",
		"thumbnail_size":    "thumbnail-size",
		"thumbnail_backend": "backend",
		"log_level":         "log-level",
		"metrics_file":      "metrics-file",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}

	root.AddCommand(
		a.scanCommand(),
		a.pluginsCommand(),
		a.applyCommand(),
		a.watchCommand(),
		a.ruleSetsCommand(),
	)
	return root
}

// setup loads configuration and starts tracing and metrics collection.
func (a *App) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := startup.LoadConfig(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(a.volumes(""))
	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	a.tracer, err = tracing.NewProvider(cfg.Tracing)
	if err != nil {
		logging.Warn("Tracing disabled: %v", err)
		a.tracer = nil
	} else if a.tracer.Enabled() {
		logging.Debug("Tracing spans with the %s exporter", cfg.Tracing.Exporter)
	}
	return nil
}

// Close releases everything the commands opened. Safe to call twice.
func (a *App) Close() error {
	var errs []error

	if a.collector != nil {
		a.collector.Stop()
		a.collector = nil
	}
	if a.registry != nil {
		errs = append(errs, a.registry.Close())
		a.registry = nil
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}
	if a.vips {
		media.ShutdownVips()
		a.vips = false
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.tracer.Shutdown(ctx))
		cancel()
		a.tracer = nil
	}
	return errors.Join(errs...)
}

// database opens the cache database once and starts the metrics collector
// on it.
func (a *App) database(ctx context.Context) (*database.Database, error) {
	if a.db != nil {
		return a.db, nil
	}

	start := time.Now()
	db, err := database.New(ctx, a.cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	startup.LogDatabaseInit(a.cfg.DatabasePath, time.Since(start))
	a.db = db

	if a.cfg.MetricsEnabled {
		a.collector = metrics.NewCollector(db, db.Path(), a.cfg.MetricsFile, time.Minute)
		a.collector.Start()
	}
	return db, nil
}

// plugins builds the registry from the built-in set and the plugins
// directory.
func (a *App) plugins(ctx context.Context) (*plugin.Registry, error) {
	if a.registry != nil {
		return a.registry, nil
	}

	reg := plugin.NewRegistry()
	if err := builtin.Register(reg); err != nil {
		return nil, fmt.Errorf("register built-in plugins: %w", err)
	}
	if a.cfg.PluginsDir != "" {
		if err := reg.Discover(ctx, a.cfg.PluginsDir); err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("discover plugins: %w", err)
		}
	}
	startup.LogPluginsLoaded(a.cfg.PluginsDir, reg.Len(), len(reg.LoadErrors()), len(reg.Conflicts()))

	a.registry = reg
	return reg, nil
}

// generator returns the configured thumbnail backend.
func (a *App) generator() (media.Generator, error) {
	if a.gen != nil {
		return a.gen, nil
	}
	gen, err := media.NewGenerator(media.Backend(a.cfg.ThumbnailBackend))
	if err != nil {
		return nil, err
	}
	a.vips = media.IsVipsAvailable()
	a.gen = gen
	return gen, nil
}

// newJob prepares a scan of root against the cache database.
func (a *App) newJob(ctx context.Context, root string) (*indexer.Job, error) {
	factory, err := a.jobFactory(ctx, root)
	if err != nil {
		return nil, err
	}
	return factory(), nil
}

// jobFactory opens the cache and thumbnail backend and returns a function
// building configured jobs for root.
func (a *App) jobFactory(ctx context.Context, root string) (func() *indexer.Job, error) {
	db, err := a.database(ctx)
	if err != nil {
		return nil, err
	}
	gen, err := a.generator()
	if err != nil {
		return nil, err
	}
	if _, err := db.EnsureWorkspace(ctx, root); err != nil {
		return nil, err
	}
	opts := []indexer.Option{
		indexer.WithEventBuffer(a.cfg.EventBuffer),
		indexer.WithThumbnailSize(a.cfg.ThumbnailSize),
		indexer.WithSkipHidden(a.cfg.SkipHidden),
		indexer.WithRetryConfig(a.retry(root)),
	}
	return func() *indexer.Job {
		return indexer.NewJob(root, db, gen, opts...)
	}, nil
}

// volumes labels filesystem metrics by the directory a path lives under.
func (a *App) volumes(root string) *filesystem.VolumeResolver {
	volumes := map[string]string{"cache": filepath.Dir(a.cfg.DatabasePath)}
	if a.cfg.PluginsDir != "" {
		volumes["plugins"] = a.cfg.PluginsDir
	}
	if root != "" {
		volumes["images"] = root
	}
	return filesystem.NewVolumeResolver(volumes)
}

// retry is the filesystem retry policy for work under root.
func (a *App) retry(root string) filesystem.RetryConfig {
	cfg := filesystem.DefaultRetryConfig()
	cfg.VolumeResolver = a.volumes(root)
	return cfg
}

// analyzer returns an Analyzer for the images under root, persisting to the
// cache database.
func (a *App) analyzer(ctx context.Context, root string) (*analysis.Analyzer, error) {
	db, err := a.database(ctx)
	if err != nil {
		return nil, err
	}
	return analysis.New(
		analysis.WithStore(db),
		analysis.WithWorkers(a.cfg.AnalysisWorkers),
		analysis.WithExpiration(a.cfg.AnalysisTTL),
		analysis.WithRetryConfig(a.retry(root)),
	), nil
}

// rootArg resolves the folder argument to an absolute directory path.
func rootArg(args []string) (string, error) {
	root, err := filepath.Abs(args[0])
	if err != nil {
		return "", err
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", args[0])
	}
	return root, nil
}
