/*
Package filesystem wraps the handful of filesystem calls the indexer and
plugin loader make (stat, open, readdir, readfile) with retry logic for
transient NFS stale file handle errors (ESTALE).

Only ESTALE is retried. Every other error, including os.ErrNotExist, is
returned on the first attempt. Retries back off exponentially from
RetryConfig.InitialBackoff up to RetryConfig.MaxBackoff.

	fp, err := filesystem.FingerprintOf(path, filesystem.DefaultRetryConfig())

Operation metrics are reported through an [Observer] installed with
[SetObserver]. Paths are labeled with a volume name by a [VolumeResolver]
so that image roots, the plugin directory and the cache database can be
told apart.

[Move] relocates a file under a [ConflictPolicy], falling back to copy and
remove when the destination is on another filesystem.
*/
package filesystem
