// Package parallel provides the worker fan-out primitives used for
// per-volume reductions and per-cluster model fitting.
package parallel

import (
	"context"
	"runtime"
	"sync"
)

// Parallelize splits items across one goroutine per available CPU core and
// calls fn with the half-open range (start, end) each worker owns.
func Parallelize(items int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items
	}

	// Ceiling division so the last chunk absorbs the remainder.
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	wg.Wait()
}

// ParallelizeWithThreshold runs fn sequentially when items is at or below
// threshold, avoiding goroutine overhead on small inputs.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}

	Parallelize(items, fn)
}

// MapN applies fn to each index in [0, items) using a fixed pool of workers.
// Errors are collected per index; fn errors do not stop other jobs. Context
// cancellation stops workers from picking up further jobs, and the context
// error is recorded on every job that was never started.
//
// workers <= 0 means runtime.GOMAXPROCS(0).
func MapN(ctx context.Context, items, workers int, fn func(i int) error) []error {
	errs := make([]error, items)
	if items == 0 {
		return errs
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > items {
		workers = items
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				errs[i] = fn(i)
			}
		}()
	}

	for i := 0; i < items; i++ {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		select {
		case <-ctx.Done():
			errs[i] = ctx.Err()
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	return errs
}
