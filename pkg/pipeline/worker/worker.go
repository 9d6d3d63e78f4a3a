package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Submit once the pool stops accepting work.
var ErrClosed = errors.New("worker pool closed")

// ErrQueueFull is returned by TrySubmit when the queue has no free slot.
var ErrQueueFull = errors.New("worker queue full")

type Options struct {
	Workers   int
	QueueSize int

	// OnError is called with every job that returned an error or panicked.
	OnError func(job any, err error)
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.QueueSize < 0 {
		o.QueueSize = 0
	}
	return o
}

// Pool runs submitted jobs on a fixed set of goroutines.
//
// Jobs are detached from the submitter: Submit returns as soon as the job is
// queued and the caller only keeps whatever handle the job carries.
type Pool[T any] struct {
	opts    Options
	handler func(context.Context, T) error

	jobs chan T
	wg   sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
}

func New[T any](handler func(context.Context, T) error, opts Options) *Pool[T] {
	opts = opts.withDefaults()
	return &Pool[T]{
		opts:    opts,
		handler: handler,
		jobs:    make(chan T, opts.QueueSize),
	}
}

// Start launches the workers. ctx is passed to every job; the pool does not
// cancel running jobs on its own.
func (p *Pool[T]) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

func (p *Pool[T]) run(ctx context.Context) {
	defer p.wg.Done()
	for job := range p.jobs {
		if err := p.process(ctx, job); err != nil && p.opts.OnError != nil {
			p.opts.OnError(job, err)
		}
	}
}

func (p *Pool[T]) process(ctx context.Context, job T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return p.handler(ctx, job)
}

// Submit queues a job, blocking while the queue is full.
func (p *Pool[T]) Submit(ctx context.Context, job T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues a job without blocking.
func (p *Pool[T]) TrySubmit(job T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for queued jobs to drain.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
