package utils

import (
	"context"
	"fmt"
	"sync"
)

// Job represents a function to be executed by a worker.
// It returns a generic result and an error.
type Job func() (interface{}, error)

// WorkerPool manages a pool of goroutines to perform tasks concurrently.
// Each timing check occupies a worker for its whole (deliberately sequential)
// probe sequence, so the pool size bounds how many targets are probed at once.
type WorkerPool struct {
	numWorkers int
	jobQueue   chan Job
	results    chan interface{}
	errors     chan error
	ctx        context.Context
	cancel     context.CancelFunc
	shutdownWg sync.WaitGroup
	mu         sync.Mutex
	isClosed   bool
}

// NewWorkerPool creates and starts a new WorkerPool.
func NewWorkerPool(parentCtx context.Context, numWorkers int, queueSize int) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(parentCtx)
	wp := &WorkerPool{
		numWorkers: numWorkers,
		jobQueue:   make(chan Job, queueSize),
		results:    make(chan interface{}, queueSize),
		errors:     make(chan error, queueSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	wp.shutdownWg.Add(wp.numWorkers)
	for i := 0; i < wp.numWorkers; i++ {
		go wp.worker()
	}

	// Close the output channels only after every worker has exited, so
	// readers can range over them safely.
	go func() {
		wp.shutdownWg.Wait()
		close(wp.results)
		close(wp.errors)
	}()

	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.shutdownWg.Done()
	for {
		select {
		case job, ok := <-wp.jobQueue:
			if !ok {
				return
			}
			result, err := job()
			if err != nil {
				select {
				case wp.errors <- err:
				case <-wp.ctx.Done():
					return
				}
			} else if result != nil {
				select {
				case wp.results <- result:
				case <-wp.ctx.Done():
					return
				}
			}
		case <-wp.ctx.Done():
			return
		}
	}
}

// Submit adds a task to the job queue.
// Returns an error if the pool is closed or the context was cancelled.
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.Lock()
	closed := wp.isClosed
	wp.mu.Unlock()
	if closed {
		return fmt.Errorf("worker pool is closed, cannot submit new jobs")
	}

	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	}
}

// Results returns a channel to read task results from.
func (wp *WorkerPool) Results() <-chan interface{} {
	return wp.results
}

// Errors returns a channel to read task errors from.
func (wp *WorkerPool) Errors() <-chan error {
	return wp.errors
}

// CloseAndDrain signals that no more jobs will be submitted and lets workers
// finish the queued ones. The results/errors channels close once every worker
// has exited.
func (wp *WorkerPool) CloseAndDrain() {
	wp.mu.Lock()
	if wp.isClosed {
		wp.mu.Unlock()
		return
	}
	wp.isClosed = true
	close(wp.jobQueue)
	wp.mu.Unlock()
}

// Shutdown aborts the pool: pending jobs are dropped and workers stop as soon
// as their current job returns.
func (wp *WorkerPool) Shutdown() {
	wp.mu.Lock()
	if !wp.isClosed {
		wp.isClosed = true
		close(wp.jobQueue)
	}
	wp.mu.Unlock()
	wp.cancel()
}
