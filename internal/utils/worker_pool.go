package utils

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Job represents a task to be executed by a worker.
type Job struct {
	Task func()
}

// WorkerPool runs submitted jobs on a fixed number of goroutines. A panicking
// job is logged and does not take its worker down.
type WorkerPool struct {
	workers   int
	jobQueue  chan Job
	waitGroup sync.WaitGroup
	logger    zerolog.Logger
	closeOnce sync.Once
}

// NewWorkerPool creates a new WorkerPool with the specified number of workers.
func NewWorkerPool(workers int, logger zerolog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	pool := &WorkerPool{
		workers:  workers,
		jobQueue: make(chan Job, workers),
		logger:   logger,
	}

	pool.waitGroup.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	return pool
}

// worker processes jobs from the jobQueue.
func (wp *WorkerPool) worker() {
	defer wp.waitGroup.Done()
	for job := range wp.jobQueue {
		wp.run(job)
	}
}

func (wp *WorkerPool) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error().Interface("panic", r).Msg("Worker job panicked")
		}
	}()
	job.Task()
}

// Submit queues task, blocking while the queue is full. It returns false
// without queueing if ctx is done first.
func (wp *WorkerPool) Submit(ctx context.Context, task func()) bool {
	select {
	case wp.jobQueue <- Job{Task: task}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish. No
// Submit may run concurrently with or after Shutdown.
func (wp *WorkerPool) Shutdown() {
	wp.closeOnce.Do(func() { close(wp.jobQueue) })
	wp.waitGroup.Wait()
}
