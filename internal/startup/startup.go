package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"pic-analyzer/internal/analysis"
	"pic-analyzer/internal/indexer"
	"pic-analyzer/internal/logging"
	"pic-analyzer/internal/media"
	"pic-analyzer/internal/tracing"
)

// AppName names the XDG subdirectories and the environment prefix.
const AppName = "pic-analyzer"

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Config holds all application configuration
type Config struct {
	PluginsDir       string         `mapstructure:"plugins_dir"`
	DatabasePath     string         `mapstructure:"database_path"`
	ThumbnailSize    int            `mapstructure:"thumbnail_size"`
	ThumbnailBackend string         `mapstructure:"thumbnail_backend"`
	SkipHidden       bool           `mapstructure:"skip_hidden"`
	EventBuffer      int            `mapstructure:"event_buffer"`
	AnalysisWorkers  int            `mapstructure:"analysis_workers"`
	AnalysisTTL      time.Duration  `mapstructure:"analysis_ttl"`
	WatchDebounce    time.Duration  `mapstructure:"watch_debounce"`
	WatchPoll        time.Duration  `mapstructure:"watch_poll"`
	MetricsFile      string         `mapstructure:"metrics_file"`
	LogLevel         string         `mapstructure:"log_level"`
	Tracing          tracing.Config `mapstructure:"tracing"`

	// ConfigFile is the file values were read from, if any.
	ConfigFile string `mapstructure:"-"`

	// MetricsEnabled is false when MetricsFile is unset or its directory is
	// not writable.
	MetricsEnabled bool `mapstructure:"-"`
}

// DefaultConfigDir is where LoadConfig looks for config.yaml or config.toml.
func DefaultConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DefaultDatabasePath is the cache database location when none is
// configured.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.CacheHome, AppName, "cache.db")
}

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	tc := tracing.DefaultConfig()

	v.SetDefault("plugins_dir", filepath.Join(xdg.DataHome, AppName, "plugins"))
	v.SetDefault("database_path", DefaultDatabasePath())
	v.SetDefault("thumbnail_size", media.DefaultSize)
	v.SetDefault("thumbnail_backend", string(media.BackendImaging))
	v.SetDefault("skip_hidden", false)
	v.SetDefault("event_buffer", indexer.DefaultEventBuffer)
	v.SetDefault("analysis_workers", 0)
	v.SetDefault("analysis_ttl", analysis.DefaultExpiration)
	v.SetDefault("watch_debounce", indexer.DefaultDebounce)
	v.SetDefault("watch_poll", time.Duration(0))
	v.SetDefault("metrics_file", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("tracing.enabled", tc.Enabled)
	v.SetDefault("tracing.exporter", tc.Exporter)
	v.SetDefault("tracing.file_path", filepath.Join(xdg.StateHome, AppName, "traces.jsonl"))
	v.SetDefault("tracing.sample_rate", tc.SampleRate)
	v.SetDefault("tracing.service_name", tc.ServiceName)
}

// bindEnv maps keys to PIC_* variables plus the bare names older
// deployments used.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("PIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("plugins_dir", "PIC_PLUGINS_DIR", "PLUGINS_DIR")
	_ = v.BindEnv("database_path", "PIC_DATABASE_PATH", "DATABASE_PATH")
	_ = v.BindEnv("log_level", "PIC_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("metrics_file", "PIC_METRICS_FILE", "METRICS_FILE")
}

// LoadConfig reads configuration from defaults, the config file, the
// environment and any flags already bound on v, then validates it and
// prepares the directories it names. cfgFile overrides the XDG lookup.
func LoadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)
	bindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(DefaultConfigDir())
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if lvl := v.GetString("log_level"); lvl != "" {
		logging.SetLevel(logging.ParseLevel(os.Getenv("DEBUG"), lvl))
	}

	printBanner()
	logSystemInfo()

	section("CONFIGURATION")
	if cfg.ConfigFile != "" {
		logging.Debug("  Config file:        %s", cfg.ConfigFile)
	} else {
		logging.Debug("  Config file:        (none, looked in %s)", DefaultConfigDir())
	}
	logging.Debug("  plugins_dir:        %s", cfg.PluginsDir)
	logging.Debug("  database_path:      %s", cfg.DatabasePath)
	logging.Debug("  thumbnail_size:     %d", cfg.ThumbnailSize)
	logging.Debug("  thumbnail_backend:  %s", cfg.ThumbnailBackend)
	logging.Debug("  skip_hidden:        %v", cfg.SkipHidden)
	logging.Debug("  event_buffer:       %d", cfg.EventBuffer)
	logging.Debug("  analysis_workers:   %d", cfg.AnalysisWorkers)
	logging.Debug("  analysis_ttl:       %v", cfg.AnalysisTTL)
	logging.Debug("  watch_debounce:     %v", cfg.WatchDebounce)
	logging.Debug("  metrics_file:       %s", cfg.MetricsFile)
	logging.Debug("  tracing:            %v (%s)", cfg.Tracing.Enabled, cfg.Tracing.Exporter)
	logging.Debug("  log_level:          %s", logging.GetLevel())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.prepareDirectories(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports every invalid value at once.
func (c *Config) Validate() error {
	var errs []error
	if c.ThumbnailSize <= 0 {
		errs = append(errs, fmt.Errorf("thumbnail_size must be positive, got %d", c.ThumbnailSize))
	}
	switch media.Backend(c.ThumbnailBackend) {
	case media.BackendImaging, media.BackendVips:
	default:
		errs = append(errs, fmt.Errorf("thumbnail_backend must be %q or %q, got %q",
			media.BackendImaging, media.BackendVips, c.ThumbnailBackend))
	}
	if c.EventBuffer < 0 {
		errs = append(errs, fmt.Errorf("event_buffer must not be negative, got %d", c.EventBuffer))
	}
	if c.AnalysisWorkers < 0 {
		errs = append(errs, fmt.Errorf("analysis_workers must not be negative, got %d", c.AnalysisWorkers))
	}
	if c.AnalysisTTL <= 0 {
		errs = append(errs, fmt.Errorf("analysis_ttl must be positive, got %v", c.AnalysisTTL))
	}
	if c.WatchDebounce < 0 || c.WatchPoll < 0 {
		errs = append(errs, fmt.Errorf("watch durations must not be negative"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, fmt.Errorf("database_path is required"))
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "file", "stdout", "none":
		default:
			errs = append(errs, fmt.Errorf("tracing.exporter must be file, stdout or none, got %q", c.Tracing.Exporter))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) prepareDirectories() error {
	section("DIRECTORY SETUP")

	var err error
	if c.DatabasePath, err = filepath.Abs(c.DatabasePath); err != nil {
		return fmt.Errorf("failed to resolve database path: %w", err)
	}
	if c.PluginsDir != "" {
		if c.PluginsDir, err = filepath.Abs(c.PluginsDir); err != nil {
			return fmt.Errorf("failed to resolve plugins directory: %w", err)
		}
	}

	databaseDir := filepath.Dir(c.DatabasePath)
	if err := ensureDirectory(databaseDir, "database"); err != nil {
		return fmt.Errorf("database directory error: %w", err)
	}
	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(databaseDir); err != nil {
		return fmt.Errorf("database directory is not writable (required for the cache): %w", err)
	}
	logging.Debug("  [OK] Database directory is writable")

	if c.PluginsDir != "" {
		if err := ensureDirectory(c.PluginsDir, "plugins"); err != nil {
			logging.Warn("Plugins directory issue: %v", err)
		}
	}

	if c.MetricsFile != "" {
		c.MetricsEnabled = setupOptionalDir(filepath.Dir(c.MetricsFile), "metrics")
	}
	if c.Tracing.Enabled && c.Tracing.Exporter == "file" {
		if !setupOptionalDir(filepath.Dir(c.Tracing.FilePath), "tracing") {
			c.Tracing.Enabled = false
		}
	}

	logging.Debug("  Metrics textfile:  %s", enabledString(c.MetricsEnabled))
	logging.Debug("  Tracing:           %s", enabledString(c.Tracing.Enabled))
	return nil
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("Failed to create %s directory: %v; %s will be disabled", name, err, name)
		return false
	}
	if err := testWriteAccess(path); err != nil {
		logging.Warn("%s directory is not writable: %v; %s will be disabled", name, err, name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs cache database initialization
func LogDatabaseInit(path string, duration time.Duration) {
	section("DATABASE INITIALIZATION")
	logging.Debug("  [OK] Cache database %s opened in %v", path, duration)
}

// LogPluginsLoaded logs the outcome of plugin discovery
func LogPluginsLoaded(dir string, loaded, loadErrors, conflicts int) {
	section("PLUGINS")
	logging.Debug("  Directory:  %s", dir)
	logging.Debug("  Loaded:     %d", loaded)
	if loadErrors > 0 {
		logging.Warn("%d plugin units failed to load", loadErrors)
	}
	if conflicts > 0 {
		logging.Warn("%d plugin names were excluded because of conflicts", conflicts)
	}
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("Shutdown initiated (received %s)", signal)
}

// Helper functions

func section(title string) {
	logging.Debug("------------------------------------------------------------")
	logging.Debug("%s", title)
	logging.Debug("------------------------------------------------------------")
}

func printBanner() {
	if !logging.IsDebugEnabled() {
		return
	}
	banner := `
------------------------------------------------------------
        _                         _
  _ __ (_) ___       __ _ _ __   __ _| |_   _ _______ _ __
 | '_ \| |/ __|____ / _' | '_ \ / _' | | | | |_  / _ \ '__|
 | |_) | | (_|_____| (_| | | | | (_| | | |_| |/ /  __/ |
 | .__/|_|\___|     \__,_|_| |_|\__,_|_|\__, /___\___|_|
 |_|                                    |___/
------------------------------------------------------------`
	fmt.Fprintln(os.Stderr, banner)
	logging.Debug("  Version:    %s", Version)
	logging.Debug("  Commit:     %s", Commit)
	logging.Debug("  Build Time: %s", BuildTime)
	logging.Debug("  Started:    %s", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	section("SYSTEM INFORMATION")
	logging.Debug("  Go version:      %s", runtime.Version())
	logging.Debug("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Debug("  CPUs available:  %d", runtime.NumCPU())
	logging.Debug("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Debug("  (Container CPU limit detected)")
	}
	if wd, err := os.Getwd(); err == nil {
		logging.Debug("  Working dir:     %s", wd)
	}
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
		// Don't return error since write access was confirmed
	}
	return nil
}
