// Package workerpool provides the bounded pool shared by a run.
//
// A Pool runs submitted tasks on a fixed set of workers. Tasks may submit
// and await sub-tasks on the same pool: when the queue is full a task
// submitted from a worker runs in the submitting goroutine, and a worker
// awaiting a task that has not started yet runs it inline. Neither path
// lets a pool of any size deadlock on nested work.
//
// Shutdown stops accepting work and blocks until every accepted task has
// finished.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var ErrPoolClosed = errors.New("worker pool closed")

// PanicError carries a panic recovered from a task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

type Pool struct {
	size  int
	jobs  chan *job
	group errgroup.Group

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

type job struct {
	claimed atomic.Bool
	run     func()
}

// claim runs the job unless another goroutine already did.
func (j *job) claim() bool {
	if !j.claimed.CompareAndSwap(false, true) {
		return false
	}
	j.run()
	return true
}

type workerKey struct{}

func inWorker(ctx context.Context) bool {
	v, _ := ctx.Value(workerKey{}).(bool)
	return v
}

// DefaultSize is the host's available parallelism.
func DefaultSize() int {
	return runtime.GOMAXPROCS(0)
}

func New(size int) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be >= 1, got %d", size)
	}
	p := &Pool{
		size: size,
		jobs: make(chan *job, size*4),
	}
	for i := 0; i < size; i++ {
		p.group.Go(func() error {
			for j := range p.jobs {
				j.claim()
			}
			return nil
		})
	}
	return p, nil
}

func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) enqueue(ctx context.Context, j *job) error {
	runInline, err := p.push(ctx, j)
	if err != nil {
		return err
	}
	if runInline {
		j.claim()
	}
	return nil
}

func (p *Pool) push(ctx context.Context, j *job) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false, ErrPoolClosed
	}
	p.inflight.Add(1)
	if inWorker(ctx) {
		select {
		case p.jobs <- j:
			return false, nil
		default:
			return true, nil
		}
	}
	select {
	case p.jobs <- j:
		return false, nil
	case <-ctx.Done():
		p.inflight.Done()
		return false, ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for accepted ones to finish.
// It is safe to call more than once. An expired ctx is reported as an
// error; the tasks keep running.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		err := p.group.Wait()
		p.inflight.Wait()
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	job  *job
	done chan struct{}
	val  T
	err  error
}

// Submit schedules fn on the pool. The context passed to fn is ctx marked as
// running inside the pool, so nested Submit and Wait calls made with it are
// deadlock-free.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (*Future[T], error) {
	if p == nil {
		return nil, errors.New("worker pool is required")
	}
	f := &Future[T]{done: make(chan struct{})}
	taskCtx := context.WithValue(ctx, workerKey{}, true)
	f.job = &job{run: func() {
		defer p.inflight.Done()
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		f.val, f.err = fn(taskCtx)
	}}
	if err := p.enqueue(ctx, f.job); err != nil {
		return nil, err
	}
	return f, nil
}

// Wait blocks until the task finishes or ctx is done. A finished task's
// result wins over a done ctx. Called from inside a pool task, it runs a
// not-yet-started task in place instead of blocking.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	if inWorker(ctx) {
		f.job.claim()
	}
	select {
	case <-f.done:
		return f.val, f.err
	default:
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the task has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}
