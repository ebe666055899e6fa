package scheduler

import (
	"context"
	"runtime"
	"sync/atomic"
)

// Pool bounds the number of decode bodies running at once across every
// scheduler that shares it.
type Pool struct {
	sem    chan struct{}
	active atomic.Int64
}

// NewPool creates a pool with size slots. size <= 0 selects runtime.NumCPU().
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Acquire blocks until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		workersActive.Set(float64(p.active.Add(1)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (p *Pool) Release() {
	select {
	case <-p.sem:
		workersActive.Set(float64(p.active.Add(-1)))
	default:
	}
}

// Size returns the number of slots.
func (p *Pool) Size() int { return cap(p.sem) }

// Active returns the number of slots in use.
func (p *Pool) Active() int { return int(p.active.Load()) }
