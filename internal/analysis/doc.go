// Package analysis runs plugins' per-file Run over a set of items and merges
// the returned metrics into copies of those items.
//
// Results are memoized in memory by plugin, path and fingerprint, and can be
// persisted through a Store so that unchanged files are not analyzed again
// on the next run. A plugin that fails on one file leaves that file without
// its metrics; sorts then treat the missing values as zero.
package analysis
