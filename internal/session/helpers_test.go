package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/goscan/internal/barcode"
	"github.com/MeKo-Tech/goscan/internal/camera"
	"github.com/MeKo-Tech/goscan/internal/geometry"
)

const testTimeout = 5 * time.Second

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// listener records outcomes and publishes them on events.
type listener struct {
	mu        sync.Mutex
	successes []string
	failures  int
	events    chan string
}

func newListener() *listener { return &listener{events: make(chan string, 16)} }

func (l *listener) ScanSuccess(text string) {
	l.mu.Lock()
	l.successes = append(l.successes, text)
	l.mu.Unlock()
	l.events <- "success:" + text
}

func (l *listener) DecodeFailure() {
	l.mu.Lock()
	l.failures++
	l.mu.Unlock()
	l.events <- "failure"
}

func (l *listener) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.successes), l.failures
}

func (l *listener) next(t *testing.T) string {
	t.Helper()
	select {
	case ev := <-l.events:
		return ev
	case <-time.After(testTimeout):
		t.Fatal("no listener event")
		return ""
	}
}

// device is a camera.Device whose frames are pushed by the test.
type device struct {
	info camera.Info

	mu       sync.Mutex
	params   []camera.Params
	cb       camera.FrameCallback
	requests int
	starts   int
	stops    int
	released bool
}

func newDevice() *device {
	return &device{info: camera.Info{
		Facing:         camera.FacingBack,
		Orientation:    90,
		SupportedSizes: []geometry.Size{{Width: 640, Height: 480}},
		DefaultSize:    geometry.Size{Width: 640, Height: 480},
	}}
}

func (d *device) Info() camera.Info { return d.info }

func (d *device) Configure(p camera.Params) (geometry.Size, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.params = append(d.params, p)
	return p.Resolution, nil
}

func (d *device) SetFlash(bool) error { return nil }

func (d *device) StartPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.starts++
	return nil
}

func (d *device) StopPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	return nil
}

func (d *device) RequestFrame(cb camera.FrameCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cb = cb
	d.requests++
}

func (d *device) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
	return nil
}

// deliver hands a blank 640x480 NV21 frame to the armed callback.
func (d *device) deliver(t *testing.T) {
	t.Helper()
	d.mu.Lock()
	cb := d.cb
	d.cb = nil
	d.mu.Unlock()
	require.NotNil(t, cb, "no frame requested")
	cb(make([]byte, 640*480*3/2), geometry.Size{Width: 640, Height: 480})
}

func (d *device) requestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests
}

func (d *device) lastParams() camera.Params {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params[len(d.params)-1]
}

type driver struct {
	mu      sync.Mutex
	devices []*device
	opened  int
	err     error
}

func (d *driver) Open(context.Context) (camera.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	if d.opened >= len(d.devices) {
		return nil, camera.ErrNoCamera
	}
	dev := d.devices[d.opened]
	d.opened++
	return dev, nil
}

// decoder misses unless decodeFn says otherwise and remembers the views it
// saw.
type decoder struct {
	decodeFn func(ctx context.Context, v barcode.View) (*barcode.Result, error)
	calls    atomic.Int32

	mu    sync.Mutex
	views []barcode.View
}

func (d *decoder) Decode(ctx context.Context, v barcode.View) (*barcode.Result, error) {
	d.calls.Add(1)
	d.mu.Lock()
	d.views = append(d.views, v)
	d.mu.Unlock()
	if d.decodeFn == nil {
		return nil, barcode.ErrNotFound
	}
	return d.decodeFn(ctx, v)
}

func (d *decoder) Reset() {}

func (d *decoder) lastView() barcode.View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.views[len(d.views)-1]
}

// blocking returns a decodeFn that waits for release or cancellation and
// then misses.
func blocking(started chan<- struct{}, release <-chan struct{}) func(context.Context, barcode.View) (*barcode.Result, error) {
	return func(ctx context.Context, _ barcode.View) (*barcode.Result, error) {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, errors.New("nothing here")
	}
}
