package scheduler

import (
	"sync/atomic"

	"github.com/MeKo-Tech/goscan/internal/barcode"
)

// Sink receives the outcome of a decode cycle. Methods are called on the
// control loop, at most one per cycle.
type Sink interface {
	// Success delivers a decoded symbol. Frame delivery is not re-armed.
	Success(res *barcode.Result)
	// Failure reports a miss on a task submitted with notifyOnFailure.
	Failure()
	// Rearm asks for the next live preview frame after a silent miss.
	Rearm()
}

// GuardedSink forwards to a Sink until Close is called, after which every
// method is a no-op.
type GuardedSink struct {
	sink   Sink
	closed atomic.Bool
}

// NewGuardedSink wraps s.
func NewGuardedSink(s Sink) *GuardedSink { return &GuardedSink{sink: s} }

// Close makes the sink inert. It is idempotent.
func (g *GuardedSink) Close() { g.closed.Store(true) }

// Closed reports whether Close has been called.
func (g *GuardedSink) Closed() bool { return g.closed.Load() }

func (g *GuardedSink) Success(res *barcode.Result) {
	if !g.closed.Load() {
		g.sink.Success(res)
	}
}

func (g *GuardedSink) Failure() {
	if !g.closed.Load() {
		g.sink.Failure()
	}
}

func (g *GuardedSink) Rearm() {
	if !g.closed.Load() {
		g.sink.Rearm()
	}
}
