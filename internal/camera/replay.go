package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/goscan/internal/frame"
	"github.com/MeKo-Tech/goscan/internal/geometry"
)

// DefaultReplaySizes are the preview sizes a replay device advertises when
// none are configured.
var DefaultReplaySizes = []geometry.Size{
	{Width: 1920, Height: 1080},
	{Width: 1280, Height: 720},
	{Width: 640, Height: 480},
}

// ReplayOptions configures a replay driver.
type ReplayOptions struct {
	Facing Facing
	// Orientation is the simulated sensor orientation.
	Orientation int
	Sizes       []geometry.Size
	// Interval is the delay between a frame request and its delivery.
	Interval time.Duration
	// Loop restarts from the first image after the last one.
	Loop   bool
	Logger *slog.Logger
}

type replaySource struct {
	path string
	img  image.Image
}

func (s replaySource) name() string {
	if s.path != "" {
		return s.path
	}
	return "memory"
}

func (s replaySource) open() (image.Image, error) {
	if s.img != nil {
		return s.img, nil
	}
	return imaging.Open(s.path, imaging.AutoOrientation(true))
}

// ReplayDriver serves a fixed list of upright images as preview frames. Each
// image is turned into the sensor orientation implied by the negotiated
// rotation, letterboxed onto the preview resolution and delivered as NV21.
// The read position is kept across reopen.
type ReplayDriver struct {
	sources []replaySource
	opts    ReplayOptions
	logger  *slog.Logger

	mu        sync.Mutex
	next      int
	exhausted chan struct{}
	closeOnce sync.Once
}

// NewReplayDriver serves the image files at paths.
func NewReplayDriver(paths []string, opts ReplayOptions) (*ReplayDriver, error) {
	if len(paths) == 0 {
		return nil, ErrNoCamera
	}
	sources := make([]replaySource, 0, len(paths))
	for _, p := range paths {
		if !frame.IsSupported(p) || strings.EqualFold(filepath.Ext(p), ".pdf") {
			return nil, fmt.Errorf("replay: unsupported file %s", p)
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
		sources = append(sources, replaySource{path: p})
	}
	return newReplayDriver(sources, opts), nil
}

// NewImageReplayDriver serves in-memory images.
func NewImageReplayDriver(images []image.Image, opts ReplayOptions) *ReplayDriver {
	sources := make([]replaySource, 0, len(images))
	for _, img := range images {
		sources = append(sources, replaySource{img: img})
	}
	return newReplayDriver(sources, opts)
}

func newReplayDriver(sources []replaySource, opts ReplayOptions) *ReplayDriver {
	if len(opts.Sizes) == 0 {
		opts.Sizes = DefaultReplaySizes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayDriver{
		sources:   sources,
		opts:      opts,
		logger:    logger.With("component", "replay"),
		exhausted: make(chan struct{}),
	}
}

// Exhausted is closed once a frame is requested past the last image of a
// non-looping driver.
func (d *ReplayDriver) Exhausted() <-chan struct{} { return d.exhausted }

// Open returns a new device over the shared image list.
func (d *ReplayDriver) Open(ctx context.Context) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(d.sources) == 0 {
		return nil, ErrNoCamera
	}
	return &replayDevice{
		driver: d,
		wake:   make(chan struct{}, 1),
	}, nil
}

func (d *ReplayDriver) info() Info {
	sizes := make([]geometry.Size, len(d.opts.Sizes))
	copy(sizes, d.opts.Sizes)
	return Info{
		Facing:         d.opts.Facing,
		Orientation:    d.opts.Orientation,
		SupportedSizes: sizes,
		DefaultSize:    sizes[0],
	}
}

// take returns the next source, or false when a non-looping driver has run
// out.
func (d *ReplayDriver) take() (replaySource, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.next >= len(d.sources) {
		if !d.opts.Loop {
			d.closeOnce.Do(func() { close(d.exhausted) })
			return replaySource{}, false
		}
		d.next = 0
	}
	src := d.sources[d.next]
	d.next++
	return src, true
}

// render produces the NV21 buffer a sensor at p would deliver for img.
func render(img image.Image, p Params) ([]byte, geometry.Size) {
	var sensor image.Image = img
	switch p.Rotation {
	case 90:
		sensor = imaging.Rotate90(img)
	case 180:
		sensor = imaging.Rotate180(img)
	case 270:
		sensor = imaging.Rotate270(img)
	}

	w, h := p.Resolution.Width, p.Resolution.Height
	fitted := imaging.Fit(sensor, w, h, imaging.Lanczos)
	canvas := imaging.PasteCenter(imaging.New(w, h, color.White), fitted)

	gray := image.NewGray(canvas.Bounds())
	draw.Draw(gray, gray.Bounds(), canvas, canvas.Bounds().Min, draw.Src)
	data, fw, fh := frame.NV21FromGray(gray)
	return data, geometry.Size{Width: fw, Height: fh}
}

type replayDevice struct {
	driver *ReplayDriver
	wake   chan struct{}
	wg     sync.WaitGroup

	mu         sync.Mutex
	params     Params
	configured bool
	previewing bool
	released   bool
	stop       chan struct{}
	cb         FrameCallback
}

func (r *replayDevice) Info() Info { return r.driver.info() }

func (r *replayDevice) Configure(p Params) (geometry.Size, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return geometry.Size{}, ErrReleased
	}
	if p.Resolution.Width <= 0 || p.Resolution.Height <= 0 {
		return geometry.Size{}, fmt.Errorf("replay: invalid resolution %s", p.Resolution)
	}
	rot, err := geometry.NormalizeRotation(p.Rotation)
	if err != nil {
		return geometry.Size{}, err
	}
	p.Rotation = rot
	r.params = p
	r.configured = true
	return p.Resolution, nil
}

func (r *replayDevice) SetFlash(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return ErrReleased
	}
	r.params.Flash = on
	return nil
}

func (r *replayDevice) StartPreview() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.released:
		return ErrReleased
	case !r.configured:
		return errors.New("replay: preview started before configure")
	case r.previewing:
		return nil
	}
	r.previewing = true
	r.stop = make(chan struct{})
	r.wg.Add(1)
	go r.pump(r.stop, r.params)
	return nil
}

func (r *replayDevice) StopPreview() error {
	r.mu.Lock()
	if !r.previewing {
		r.mu.Unlock()
		return nil
	}
	r.previewing = false
	close(r.stop)
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}

func (r *replayDevice) RequestFrame(cb FrameCallback) {
	r.mu.Lock()
	r.cb = cb
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *replayDevice) Release() error {
	if err := r.StopPreview(); err != nil {
		return err
	}
	r.mu.Lock()
	r.released = true
	r.cb = nil
	r.mu.Unlock()
	return nil
}

func (r *replayDevice) pump(stop <-chan struct{}, params Params) {
	defer r.wg.Done()

	for {
		select {
		case <-stop:
			return
		case <-r.wake:
		}

		if r.driver.opts.Interval > 0 {
			timer := time.NewTimer(r.driver.opts.Interval)
			select {
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		r.mu.Lock()
		cb := r.cb
		r.cb = nil
		r.mu.Unlock()
		if cb == nil {
			continue
		}

		src, ok := r.driver.take()
		if !ok {
			return
		}
		img, err := src.open()
		if err != nil {
			r.driver.logger.Warn("skipping unreadable replay image", "path", src.name(), "error", err)
			r.RequestFrame(cb)
			continue
		}
		data, size := render(img, params)
		cb(data, size)
	}
}
