package scan

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("scan: worker pool closed")

// Pool is a fixed set of worker goroutines fed from one task queue. It is
// built once per Orchestrator and shared by every scan it runs.
type Pool struct {
	tasks chan func()
	g     errgroup.Group
	size  int

	mu     sync.RWMutex
	closed bool
}

// NewPool starts size workers. Sizes below one are raised to one.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{tasks: make(chan func()), size: size}
	for i := 0; i < size; i++ {
		p.g.Go(func() error {
			for task := range p.tasks {
				task()
			}
			return nil
		})
	}
	return p
}

// Size is the number of workers.
func (p *Pool) Size() int { return p.size }

// Submit hands task to an idle worker, blocking until one is free or ctx is
// done. A nil return means the task will run.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for running ones to finish.
func (p *Pool) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	return p.g.Wait()
}
