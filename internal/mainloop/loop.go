// Package mainloop provides the single control goroutine that owns camera,
// session and listener state. Other goroutines hand work to it with Post.
package mainloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrStopped is returned when work is handed to a loop that has stopped.
var ErrStopped = errors.New("mainloop: stopped")

// Loop runs posted closures one at a time, in FIFO order, on the goroutine
// that called Run.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
	done    chan struct{}
	logger  *slog.Logger
}

// New creates a loop. Nothing runs until Run is called.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{done: make(chan struct{}), logger: logger}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Post queues fn and returns immediately. It reports false when the loop has
// stopped and fn will never run. Safe for concurrent use.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	return true
}

// Call posts fn and waits for it to finish. It must not be called from the
// loop goroutine.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		// fn may have been the last closure to run before the loop stopped.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued closures until Stop is called or ctx is done. Queued
// closures that have not started when the loop stops are discarded. A
// panicking closure is logged and does not stop the loop.
func (l *Loop) Run(ctx context.Context) {
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			l.Stop()
		case <-stopWatch:
		}
	}()

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.stopped {
			l.queue = nil
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.run(fn)
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("mainloop task panicked", "panic", r)
		}
	}()
	fn()
}

// Stop ends Run after the closure currently executing, if any. It is
// idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	close(l.done)
	l.cond.Broadcast()
}

// Done is closed once Stop has been called.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Pending returns the number of queued closures.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Start runs the loop on a new goroutine and returns it.
func Start(ctx context.Context, logger *slog.Logger) *Loop {
	l := New(logger)
	go l.Run(ctx)
	return l
}
