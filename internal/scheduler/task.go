package scheduler

import (
	"context"
	"sync/atomic"

	"github.com/MeKo-Tech/goscan/internal/frame"
)

// Outcome is the terminal state of a decode task.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSuccess
	OutcomeMiss
	OutcomeFailure
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeMiss:
		return "miss"
	case OutcomeFailure:
		return "failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// Task is one scheduled decode of one frame.
type Task struct {
	seq             uint64
	kind            frame.Kind
	frame           *frame.Frame
	notifyOnFailure bool

	cancelled atomic.Bool
	ctx       context.Context
	cancelCtx context.CancelFunc

	done    chan struct{}
	outcome atomic.Int32
}

func newTask(seq uint64, f *frame.Frame, notify bool) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{
		seq:             seq,
		kind:            f.Kind,
		frame:           f,
		notifyOnFailure: notify,
		ctx:             ctx,
		cancelCtx:       cancel,
		done:            make(chan struct{}),
	}
}

// Seq returns the task's submission sequence number.
func (t *Task) Seq() uint64 { return t.seq }

// Kind returns the kind of frame the task decodes.
func (t *Task) Kind() frame.Kind { return t.kind }

// NotifyOnFailure reports whether a miss is reported to the sink.
func (t *Task) NotifyOnFailure() bool { return t.notifyOnFailure }

// Cancel sets the cancellation flag. The body notices it at its next yield
// point; the completion is then discarded. Safe from any goroutine.
func (t *Task) Cancel() {
	if t.cancelled.CompareAndSwap(false, true) {
		t.cancelCtx()
	}
}

// Cancelled reports whether Cancel has been called.
func (t *Task) Cancelled() bool { return t.cancelled.Load() }

// Done is closed when the decode body has returned. Completion dispatch on
// the control loop may still be pending.
func (t *Task) Done() <-chan struct{} { return t.done }

// Outcome returns the dispatched outcome, or OutcomePending before dispatch.
func (t *Task) Outcome() Outcome { return Outcome(t.outcome.Load()) }

func (t *Task) setOutcome(o Outcome) { t.outcome.Store(int32(o)) }
