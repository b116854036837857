/*
Package workers sizes and runs small worker pools.

Worker counts are derived from runtime.GOMAXPROCS(0) rather than
runtime.NumCPU(), so that a process running under a container CPU limit
does not spawn one goroutine per host core.

	n := workers.ForIO(16)     // image decoding + plugin runs
	n := workers.ForCPU(8)     // pure computation

Setting PIC_ANALYZER_WORKERS to a positive integer pins the count for every
pool; the per-call limit still applies.

[Map] fans a slice out over n goroutines and collects the results in input
order. It is used by the analysis runner to evaluate general plugins over a
folder of images.
*/
package workers
