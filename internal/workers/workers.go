package workers

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"sync"
)

// EnvOverride is the environment variable that pins the worker count for
// every pool in the process.
const EnvOverride = "PIC_ANALYZER_WORKERS"

// Count returns the number of workers for a task. It uses GOMAXPROCS, which
// follows container CPU limits, scaled by multiplier:
//   - 1.0 for CPU-bound tasks
//   - 2.0 for I/O-bound tasks
//   - 1.5 for mixed tasks
//
// limit caps the result; 0 means no cap. A positive integer in
// PIC_ANALYZER_WORKERS overrides the computed value (the cap still applies).
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)
	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}

// Map runs fn over inputs on n goroutines and returns the outputs in input
// order. The first error cancels the context passed to the remaining calls
// and is returned; outputs are then undefined.
func Map[In, Out any](ctx context.Context, n int, inputs []In, fn func(context.Context, In) (Out, error)) ([]Out, error) {
	if n < 1 {
		n = 1
	}
	if n > len(inputs) {
		n = len(inputs)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outputs := make([]Out, len(inputs))
	jobs := make(chan int)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for w := 0; w < n; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out, err := fn(ctx, inputs[i])
				if err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
					continue
				}
				outputs[i] = out
			}
		}()
	}

feed:
	for i := range inputs {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outputs, nil
}
