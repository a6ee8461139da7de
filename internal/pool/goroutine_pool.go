// Package pool provides a goroutine pool for controlled concurrency.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task represents a unit of work.
type Task func(ctx context.Context)

// GoroutinePool manages a fixed set of worker goroutines draining a
// bounded queue. Submission never blocks: a full queue rejects the task,
// which suits fire-and-forget dispatch.
type GoroutinePool struct {
	taskQueue chan taskWrapper
	closed    atomic.Bool
	wg        sync.WaitGroup

	// Metrics
	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
}

type taskWrapper struct {
	task Task
	ctx  context.Context
}

// NewGoroutinePool creates a pool with the given worker count and queue size.
func NewGoroutinePool(workers, queueSize int) *GoroutinePool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 64
	}

	p := &GoroutinePool{
		taskQueue: make(chan taskWrapper, queueSize),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *GoroutinePool) worker() {
	defer p.wg.Done()
	for wrapper := range p.taskQueue {
		func() {
			// A panicking task must not take the worker down.
			defer func() { _ = recover() }()
			wrapper.task(wrapper.ctx)
		}()
		p.completed.Add(1)
	}
}

// Submit enqueues a task without blocking.
func (p *GoroutinePool) Submit(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case p.taskQueue <- taskWrapper{task: task, ctx: ctx}:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

// Close stops accepting tasks and waits for queued work to drain.
func (p *GoroutinePool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.taskQueue)
	p.wg.Wait()
}

// Stats reports pool counters.
func (p *GoroutinePool) Stats() (submitted, completed, rejected int64) {
	return p.submitted.Load(), p.completed.Load(), p.rejected.Load()
}
