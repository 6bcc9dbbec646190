package propagation

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// WorkerPool manages a fixed number of goroutines for parallel propagation.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
// A non-positive count selects runtime.NumCPU().
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int { return wp.workers }

// PropagateAll evaluates every propagator at the same instant. The result
// slice is index-aligned with props. A failing object only affects its own
// slot. When ctx is cancelled, entries not yet evaluated carry ctx.Err().
func (wp *WorkerPool) PropagateAll(ctx context.Context, props []Propagator, at time.Time) []Result {
	results := make([]Result, len(props))
	if len(props) == 0 {
		return results
	}

	workers := min(wp.workers, len(props))
	jobs := make(chan int, workers*2)
	done := make([]bool, len(props))

	// Start workers. Each index is written by exactly one worker.
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					continue
				}
				sv, err := props[idx].Propagate(at)
				results[idx] = Result{State: sv, Err: err}
				done[idx] = true
			}
		}()
	}

	// Feed jobs.
feed:
	for idx := range props {
		select {
		case jobs <- idx:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		var skipped int
		for i := range results {
			if !done[i] {
				results[i] = Result{Err: err}
				skipped++
			}
		}
		wp.logger.Debug("batch propagation cancelled",
			"total", len(props),
			"skipped", skipped,
			"error", err,
		)
	}
	return results
}

// PropagateAllSequential is the single-goroutine equivalent of
// WorkerPool.PropagateAll and yields identical results.
func PropagateAllSequential(ctx context.Context, props []Propagator, at time.Time) []Result {
	results := make([]Result, len(props))
	for i, p := range props {
		if err := ctx.Err(); err != nil {
			results[i] = Result{Err: err}
			continue
		}
		sv, err := p.Propagate(at)
		results[i] = Result{State: sv, Err: err}
	}
	return results
}
