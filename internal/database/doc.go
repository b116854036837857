// Package database provides the SQLite cache behind pic-analyzer.
//
// It stores:
//   - Thumbnails keyed by path, with the fingerprint they were made from
//   - The folders that have been scanned (workspaces)
//   - Plugin run() results, keyed by path, plugin and fingerprint
//   - Saved rule configurations per workspace
//
// The database uses WAL mode so cachectl can read while a scan writes,
// and applies schema migrations on open.
package database
