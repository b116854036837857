// Package indexer discovers the images under a folder and keeps their
// thumbnails cached.
//
// A Job walks one root depth-first. For every file with a supported image
// extension it compares the file's size and modification time with the
// cache entry:
//   - on a hit the stored thumbnail is reused and the generator is not called
//   - on a miss a thumbnail is generated and written back to the cache
//
// Each thumbnail is sent on the job's event channel as soon as it is ready.
// Files that cannot be decoded are skipped. The walk checks for cancellation
// before every directory, every file and every emission; a cancelled job
// sends nothing further and ends in StateCancelled. A finished walk sends
// EventFinished, and a walk that cannot read the root or a directory sends
// EventFailed.
//
// Watcher reports settled changes under a root through fsnotify, or by
// polling when notify is unavailable, and Rescanner restarts scans on those
// changes one job at a time.
package indexer
