// Package scheduler runs at most one decode task per session on a bounded
// worker pool and dispatches each outcome back on the session's control
// loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/goscan/internal/barcode"
	"github.com/MeKo-Tech/goscan/internal/frame"
	"github.com/MeKo-Tech/goscan/internal/geometry"
	"github.com/MeKo-Tech/goscan/internal/mainloop"
	"github.com/MeKo-Tech/goscan/internal/mempool"
)

var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("scheduler: closed")
	// ErrNoLoader is returned when an unloaded static file is submitted
	// without a FileLoader.
	ErrNoLoader = errors.New("scheduler: no file loader configured")

	errCancelled = errors.New("scheduler: task cancelled")
)

// FileLoader resolves a static-file frame off the control loop.
type FileLoader interface {
	Load(ctx context.Context, path string) (*frame.Frame, error)
}

// Config wires a Scheduler to its collaborators.
type Config struct {
	Decoder barcode.Decoder
	Loop    *mainloop.Loop
	Sink    Sink
	Pool    *Pool      // nil: a private pool of runtime.NumCPU() slots
	Loader  FileLoader // required for unloaded static-file frames
	Logger  *slog.Logger
}

// Scheduler owns one session's decode tasks. Submit, Cancel, Busy and
// Close must be called on the control loop; decode bodies run on pool
// goroutines and hand their result back with Loop.Post.
//
// Each body waits for its predecessor's body to return before touching the
// decoder, so two decode calls never overlap on the shared Decoder even
// when a cancelled body is still winding down.
type Scheduler struct {
	decoder barcode.Decoder
	loop    *mainloop.Loop
	sink    Sink
	pool    *Pool
	loader  FileLoader
	logger  *slog.Logger

	seq     uint64
	current *Task
	tail    <-chan struct{}
	closed  bool

	// yield, when set, is called at each yield point of a decode body.
	yield func(t *Task, stage string)
}

// New validates cfg and returns a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Decoder == nil || cfg.Loop == nil || cfg.Sink == nil {
		return nil, errors.New("scheduler: decoder, loop and sink are required")
	}
	if cfg.Pool == nil {
		cfg.Pool = NewPool(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		decoder: cfg.Decoder,
		loop:    cfg.Loop,
		sink:    cfg.Sink,
		pool:    cfg.Pool,
		loader:  cfg.Loader,
		logger:  cfg.Logger,
	}, nil
}

// Submit cancels the in-flight task, if any, and starts decoding f. A miss
// is reported through Sink.Failure when notifyOnFailure is set and through
// Sink.Rearm otherwise. Frames that fail validation are rejected without
// starting a task.
func (s *Scheduler) Submit(f *frame.Frame, notifyOnFailure bool) (*Task, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.Kind == frame.KindStaticFile && !f.Loaded() && s.loader == nil {
		return nil, ErrNoLoader
	}

	s.cancelCurrent()
	s.seq++
	t := newTask(s.seq, f, notifyOnFailure)
	prev := s.tail
	s.current = t
	s.tail = t.done

	s.logger.Debug("decode task submitted", "seq", t.seq, "kind", t.kind.String(),
		"notify_on_failure", notifyOnFailure)
	go s.execute(t, prev)
	return t, nil
}

// Cancel cancels the in-flight task without starting another. Its
// completion is never delivered.
func (s *Scheduler) Cancel() { s.cancelCurrent() }

// Busy reports whether a task is in flight.
func (s *Scheduler) Busy() bool { return s.current != nil }

// Current returns the in-flight task or nil.
func (s *Scheduler) Current() *Task { return s.current }

// Close cancels the in-flight task and rejects further submissions.
func (s *Scheduler) Close() {
	s.cancelCurrent()
	s.closed = true
}

// Wait blocks until the most recently submitted body has returned and queued
// its completion on the loop. It must be called off the control loop.
func (s *Scheduler) Wait(ctx context.Context) error {
	var tail <-chan struct{}
	if err := s.loop.Call(ctx, func() { tail = s.tail }); err != nil {
		return err
	}
	if tail == nil {
		return nil
	}
	select {
	case <-tail:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) cancelCurrent() {
	if s.current == nil {
		return
	}
	s.current.Cancel()
	s.logger.Debug("decode task cancelled", "seq", s.current.seq)
	s.current = nil
}

func (s *Scheduler) execute(t *Task, prev <-chan struct{}) {
	var (
		res *barcode.Result
		err error
	)
	defer func() {
		if !s.loop.Post(func() { s.complete(t, res, err) }) {
			s.logger.Debug("control loop stopped, completion dropped", "seq", t.seq)
		}
		close(t.done)
	}()

	if prev != nil {
		<-prev
	}
	if t.Cancelled() {
		err = errCancelled
		return
	}
	if err = s.pool.Acquire(t.ctx); err != nil {
		return
	}
	defer s.pool.Release()

	start := time.Now()
	res, err = s.run(t)
	decodeDuration.WithLabelValues(t.kind.String()).Observe(time.Since(start).Seconds())
}

// run is the decode body. Any error, including a recovered panic, means
// "no result". The decoder is reset after every invocation.
func (s *Scheduler) run(t *Task) (res *barcode.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			decoderPanicsTotal.Inc()
			s.logger.Error("decode body panicked", "seq", t.seq, "panic", r)
			res, err = nil, fmt.Errorf("decode panic: %v", r)
		}
		s.decoder.Reset()
	}()

	f := t.frame
	if f.Kind == frame.KindStaticFile && !f.Loaded() {
		f, err = s.loader.Load(t.ctx, f.Path)
		if err != nil {
			return nil, err
		}
	}
	if s.checkpoint(t, "loaded") {
		return nil, errCancelled
	}

	view, release, err := s.prepare(t, f)
	if release != nil {
		defer release()
	}
	if err != nil {
		return nil, err
	}
	if s.checkpoint(t, "view") {
		return nil, errCancelled
	}
	return s.decoder.Decode(t.ctx, view)
}

// prepare rotates live luminance into upright orientation and builds the
// decoder view. The returned release func gives pooled buffers back.
func (s *Scheduler) prepare(t *Task, f *frame.Frame) (barcode.View, func(), error) {
	if f.Format == frame.FormatRGB565 {
		img, err := f.RGB565()
		if err != nil {
			return barcode.View{}, nil, err
		}
		v, err := barcode.NewImageView(img)
		return v, nil, err
	}

	lum, err := f.Luminance()
	if err != nil {
		return barcode.View{}, nil, err
	}
	w, h := f.Width, f.Height
	var release func()
	if f.Rotation != 0 {
		buf := mempool.GetBytes(w * h)
		rotated, rw, rh, err := geometry.RotateInto(buf, lum, w, h, f.Rotation)
		if err != nil {
			mempool.PutBytes(buf)
			return barcode.View{}, nil, err
		}
		release = func() { mempool.PutBytes(rotated) }
		lum, w, h = rotated, rw, rh
	}
	if s.checkpoint(t, "rotated") {
		return barcode.View{}, release, errCancelled
	}
	v, err := barcode.NewLuminanceView(lum, w, h, f.Region)
	return v, release, err
}

func (s *Scheduler) checkpoint(t *Task, stage string) bool {
	if s.yield != nil {
		s.yield(t, stage)
	}
	return t.Cancelled()
}

// complete runs on the control loop. Only the current task may reach the
// sink; anything else was superseded or torn down.
func (s *Scheduler) complete(t *Task, res *barcode.Result, err error) {
	kind := t.kind.String()
	if t.Cancelled() || t != s.current {
		t.setOutcome(OutcomeCancelled)
		tasksTotal.WithLabelValues(kind, OutcomeCancelled.String()).Inc()
		return
	}
	s.current = nil

	if res != nil {
		t.setOutcome(OutcomeSuccess)
		tasksTotal.WithLabelValues(kind, OutcomeSuccess.String()).Inc()
		s.logger.Debug("decode succeeded", "seq", t.seq, "kind", kind, "format", res.Format.String())
		s.sink.Success(res)
		return
	}

	if t.notifyOnFailure {
		t.setOutcome(OutcomeFailure)
		tasksTotal.WithLabelValues(kind, OutcomeFailure.String()).Inc()
		s.logFailure(t, err)
		s.sink.Failure()
		return
	}

	t.setOutcome(OutcomeMiss)
	tasksTotal.WithLabelValues(kind, OutcomeMiss.String()).Inc()
	rearmsTotal.Inc()
	s.logger.Debug("decode miss, re-arming", "seq", t.seq, "kind", kind, "error", err)
	s.sink.Rearm()
}

func (s *Scheduler) logFailure(t *Task, err error) {
	level := slog.LevelInfo
	if errors.Is(err, frame.ErrOutOfMemory) {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "decode failed", "seq", t.seq,
		"kind", t.kind.String(), "path", t.frame.Path, "error", err)
}
