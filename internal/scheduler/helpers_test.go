package scheduler

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/goscan/internal/barcode"
	"github.com/MeKo-Tech/goscan/internal/frame"
	"github.com/MeKo-Tech/goscan/internal/mainloop"
)

const testTimeout = 5 * time.Second

// fakeDecoder records calls and flags any overlapping Decode.
type fakeDecoder struct {
	decodeFn func(ctx context.Context, v barcode.View) (*barcode.Result, error)

	calls    atomic.Int32
	resets   atomic.Int32
	inFlight atomic.Int32
	overlap  atomic.Bool

	mu    sync.Mutex
	views []barcode.View
}

func (d *fakeDecoder) Decode(ctx context.Context, v barcode.View) (*barcode.Result, error) {
	if d.inFlight.Add(1) > 1 {
		d.overlap.Store(true)
	}
	defer d.inFlight.Add(-1)
	d.calls.Add(1)
	d.mu.Lock()
	d.views = append(d.views, v)
	d.mu.Unlock()
	if d.decodeFn == nil {
		return nil, barcode.ErrNotFound
	}
	return d.decodeFn(ctx, v)
}

func (d *fakeDecoder) Reset() { d.resets.Add(1) }

func (d *fakeDecoder) lastView() barcode.View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.views[len(d.views)-1]
}

func found(text string) func(context.Context, barcode.View) (*barcode.Result, error) {
	return func(context.Context, barcode.View) (*barcode.Result, error) {
		return &barcode.Result{Text: text, Format: barcode.FormatQR}, nil
	}
}

// recorder is a Sink that remembers every callback.
type recorder struct {
	mu        sync.Mutex
	successes []string
	failures  int
	rearms    int
}

func (r *recorder) Success(res *barcode.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, res.Text)
}

func (r *recorder) Failure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

func (r *recorder) Rearm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rearms++
}

func (r *recorder) snapshot() ([]string, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.successes...), r.failures, r.rearms
}

type fixture struct {
	loop    *mainloop.Loop
	sched   *Scheduler
	decoder *fakeDecoder
	sink    *recorder
}

func newFixture(t *testing.T, loader FileLoader) *fixture {
	t.Helper()
	loop := mainloop.Start(context.Background(), nil)
	t.Cleanup(loop.Stop)

	dec := &fakeDecoder{}
	rec := &recorder{}
	s, err := New(Config{Decoder: dec, Loop: loop, Sink: rec, Pool: NewPool(2), Loader: loader})
	require.NoError(t, err)
	return &fixture{loop: loop, sched: s, decoder: dec, sink: rec}
}

func (fx *fixture) onLoop(t *testing.T, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, fx.loop.Call(ctx, fn))
}

func (fx *fixture) submit(t *testing.T, f *frame.Frame, notify bool) *Task {
	t.Helper()
	var (
		task *Task
		err  error
	)
	fx.onLoop(t, func() { task, err = fx.sched.Submit(f, notify) })
	require.NoError(t, err)
	return task
}

// settle waits for the last body and then for its completion to run.
func (fx *fixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, fx.sched.Wait(ctx))
	fx.onLoop(t, func() {})
}

func (fx *fixture) busy(t *testing.T) bool {
	t.Helper()
	var b bool
	fx.onLoop(t, func() { b = fx.sched.Busy() })
	return b
}

func liveFrame(t *testing.T, w, h, rotation int, region image.Rectangle) *frame.Frame {
	t.Helper()
	f, err := frame.NewLivePreview(make([]byte, w*h*3/2), w, h, rotation, region)
	require.NoError(t, err)
	return f
}

func loadedFileFrame(w, h int) *frame.Frame {
	return &frame.Frame{
		Kind:   frame.KindStaticFile,
		Format: frame.FormatRGB565,
		Data:   make([]byte, w*h*2),
		Width:  w,
		Height: h,
		Path:   "memory.png",
	}
}

type failingLoader struct{ err error }

func (l failingLoader) Load(context.Context, string) (*frame.Frame, error) { return nil, l.err }

var errLoad = errors.New("load failed")
