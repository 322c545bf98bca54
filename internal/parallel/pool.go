// Package parallel provides the goroutine pool that executes compute
// workgroups for the CPU engine.
//
// Work is expressed as an index range. Lanes claim indices from a shared
// ticket counter in increasing order, so an index is only ever started after
// every lower index has been claimed by a running lane. Kernels that wait on
// lower indices (the scan lookback) rely on this ordering for forward progress.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a pool of goroutines running workgroup lanes.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	// workers is the number of worker goroutines.
	workers int

	// lanes hands lane bodies to idle workers. It is unbuffered so a body
	// is never stranded in the channel after Close.
	lanes chan func()

	// done signals workers to stop.
	done chan struct{}

	// wg waits for all workers to finish.
	wg sync.WaitGroup

	// running indicates whether the pool is accepting work.
	running atomic.Bool
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &WorkerPool{
		workers: workers,
		lanes:   make(chan func()),
		done:    make(chan struct{}),
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}

	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case lane := <-p.lanes:
			lane()
		}
	}
}

// Run calls fn(i) for every i in [0, n) and returns once all calls complete.
//
// Indices are claimed through an atomic ticket, never assigned up front.
// Once the pool is closed Run executes every index on the calling goroutine.
func (p *WorkerPool) Run(n int, fn func(i int)) {
	if n <= 0 {
		return
	}

	var next atomic.Int64
	lane := func() {
		for {
			i := int(next.Add(1) - 1)
			if i >= n {
				return
			}
			fn(i)
		}
	}

	lanes := min(p.workers, n)
	if lanes == 1 || !p.running.Load() {
		lane()
		return
	}

	var completion sync.WaitGroup
	completion.Add(lanes)
	wrapped := func() {
		defer completion.Done()
		lane()
	}
	for range lanes {
		select {
		case p.lanes <- wrapped:
		case <-p.done:
			// Pool is closing; the caller becomes a lane itself.
			wrapped()
		}
	}
	completion.Wait()
}

// Close stops the workers. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
