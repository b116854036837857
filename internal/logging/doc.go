// Package logging provides a simple leveled logging interface for the
// pic-analyzer application, backed by zerolog.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable (or
// DEBUG=true). Setting LOG_FILE additionally appends JSON records to a file.
// Components obtain a tagged logger with For:
//
//	var log = logging.For("indexer")
//	log.Info("scan started: %s", root)
package logging
