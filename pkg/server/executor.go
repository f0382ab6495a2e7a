package server

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers is the number of tasks that may run at once
	DefaultWorkers = 10
	// DefaultQueueSize is the number of tasks that may wait for a worker
	DefaultQueueSize = 1000
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free
	ErrQueueFull = errors.New("executor queue is full")
	// ErrExecutorClosed is returned by Submit after Close
	ErrExecutorClosed = errors.New("executor is closed")
)

// Executor runs tasks on a bounded number of workers. Tasks beyond the
// worker limit wait in a bounded queue; once the queue is full new tasks are
// rejected instead of blocking the caller. At most workers+queueSize tasks
// are accepted at any time.
type Executor struct {
	tasks  chan func()
	slots  chan struct{}
	group  errgroup.Group
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

// NewExecutor starts an executor. Non-positive sizes select the defaults.
func NewExecutor(workers, queueSize int) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	e := &Executor{
		tasks: make(chan func(), queueSize),
		slots: make(chan struct{}, workers),
		done:  make(chan struct{}),
	}
	go e.dispatch()
	return e
}

// dispatch takes a task off the queue only once a worker slot is free, so a
// waiting task always counts against the queue.
func (e *Executor) dispatch() {
	defer close(e.done)
	for {
		e.slots <- struct{}{}
		task, ok := <-e.tasks
		if !ok {
			<-e.slots
			break
		}
		e.group.Go(func() error {
			defer func() { <-e.slots }()
			task()
			return nil
		})
	}
	_ = e.group.Wait()
}

// Submit queues task for execution without blocking
func (e *Executor) Submit(task func()) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrExecutorClosed
	}
	select {
	case e.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued tasks not yet handed to a worker
func (e *Executor) Pending() int {
	return len(e.tasks)
}

// Close stops accepting tasks and waits until queued and running tasks finish
func (e *Executor) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.tasks)
	}
	e.mu.Unlock()
	<-e.done
}

// Shutdown is Close bounded by ctx
func (e *Executor) Shutdown(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		e.Close()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
