package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel LogLevel
	levelOnce    sync.Once

	loggerMu sync.RWMutex
	logger   zerolog.Logger
)

// initLevel initializes the log level and the zerolog backend from environment variables
func initLevel() {
	levelOnce.Do(func() {
		currentLevel = ParseLevel(os.Getenv("DEBUG"), os.Getenv("LOG_LEVEL"))
		logger = newLogger(os.Stderr, os.Getenv("LOG_FILE"))
	})
}

// ParseLevel resolves the effective level from the DEBUG and LOG_LEVEL values.
// DEBUG wins when truthy; unknown LOG_LEVEL values fall back to info.
func ParseLevel(debug, level string) LogLevel {
	switch strings.ToLower(debug) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}

	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func newLogger(console io.Writer, logFile string) zerolog.Logger {
	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.DateTime,
	}}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			writers = append(writers, f)
		} else {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", logFile, err)
		}
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return currentLevel
}

// SetLevel overrides the level derived from the environment.
func SetLevel(level LogLevel) {
	initLevel()
	loggerMu.Lock()
	currentLevel = level
	loggerMu.Unlock()
}

// SetOutput redirects console output to w without colors. Used by the CLI
// when stderr is not a terminal, and by tests.
func SetOutput(w io.Writer) {
	initLevel()
	loggerMu.Lock()
	logger = zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.DateTime}).
		With().Timestamp().Logger()
	loggerMu.Unlock()
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func backend() zerolog.Logger {
	initLevel()
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

func emit(level LogLevel, component, format string, args []interface{}) {
	if GetLevel() > level {
		return
	}
	lg := backend()
	ev := lg.WithLevel(level.zerolog())
	if component != "" {
		ev = ev.Str("component", component)
	}
	ev.Msgf(format, args...)
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	emit(LevelDebug, "", format, args)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	emit(LevelInfo, "", format, args)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	emit(LevelWarn, "", format, args)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	emit(LevelError, "", format, args)
}

// Logger tags every message with a component name.
type Logger struct {
	component string
}

// For returns a Logger for the named component.
func For(component string) Logger {
	return Logger{component: component}
}

// Debug logs a debug message for the component.
func (l Logger) Debug(format string, args ...interface{}) {
	emit(LevelDebug, l.component, format, args)
}

// Info logs an info message for the component.
func (l Logger) Info(format string, args ...interface{}) {
	emit(LevelInfo, l.component, format, args)
}

// Warn logs a warning for the component.
func (l Logger) Warn(format string, args ...interface{}) {
	emit(LevelWarn, l.component, format, args)
}

// Error logs an error for the component.
func (l Logger) Error(format string, args ...interface{}) {
	emit(LevelError, l.component, format, args)
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
