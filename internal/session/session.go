// Package session ties a camera, a decoder and a listener together into one
// scan session. All session state lives on a control loop; the exported
// methods hand work to that loop and may be called from any goroutine
// other than the loop itself.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/goscan/internal/barcode"
	"github.com/MeKo-Tech/goscan/internal/camera"
	"github.com/MeKo-Tech/goscan/internal/frame"
	"github.com/MeKo-Tech/goscan/internal/geometry"
	"github.com/MeKo-Tech/goscan/internal/mainloop"
	"github.com/MeKo-Tech/goscan/internal/scheduler"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session: closed")

// Listener receives decode outcomes on the control loop, at most one call
// per decode cycle. Implementations must not call blocking Session methods
// from inside a callback; Resume is safe.
type Listener interface {
	ScanSuccess(text string)
	DecodeFailure()
}

// ResultListener is implemented by listeners that want the full result.
// When present, ScanResult is called instead of ScanSuccess.
type ResultListener interface {
	ScanResult(res *barcode.Result)
}

// Viewport describes the view hosting the preview.
type Viewport interface {
	// Size is the view's measured size.
	Size() geometry.Size
	// Finder is the finder rectangle in view coordinates. An empty
	// rectangle scans the whole preview.
	Finder() image.Rectangle
}

// StaticViewport is a fixed Viewport.
type StaticViewport struct {
	View       geometry.Size
	FinderRect image.Rectangle
}

func (v StaticViewport) Size() geometry.Size     { return v.View }
func (v StaticViewport) Finder() image.Rectangle { return v.FinderRect }

// Config wires a Session.
type Config struct {
	Driver   camera.Driver // nil: a file-only session
	Decoder  barcode.Decoder
	Loader   scheduler.FileLoader
	Pool     *scheduler.Pool
	Loop     *mainloop.Loop // nil: the session runs its own loop
	Listener Listener
	Viewport Viewport
	// DisplayRotation is the clockwise rotation of the display.
	DisplayRotation int
	Logger          *slog.Logger
}

// Session is one scanner: a camera preview feeding a single-flight decode
// scheduler, plus on-demand static file decodes.
type Session struct {
	loop     *mainloop.Loop
	ownsLoop bool
	sched    *scheduler.Scheduler
	sink     *scheduler.GuardedSink
	camera   *camera.Manager
	listener Listener
	viewport Viewport
	logger   *slog.Logger

	// control loop state
	surface  bool
	scanning bool
	closed   bool
}

// New builds a session. The camera is not opened until Attach.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Decoder == nil {
		return nil, errors.New("session: decoder is required")
	}
	if cfg.Listener == nil {
		return nil, errors.New("session: listener is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Viewport == nil {
		cfg.Viewport = StaticViewport{}
	}
	if _, err := geometry.NormalizeRotation(cfg.DisplayRotation); err != nil {
		return nil, fmt.Errorf("session: display rotation: %w", err)
	}

	s := &Session{
		loop:     cfg.Loop,
		listener: cfg.Listener,
		viewport: cfg.Viewport,
		logger:   cfg.Logger.With("component", "session"),
		scanning: true,
	}
	if s.loop == nil {
		s.loop = mainloop.Start(ctx, cfg.Logger)
		s.ownsLoop = true
	}
	if cfg.Driver != nil {
		s.camera = camera.NewManager(cfg.Driver, cfg.Viewport.Size(), cfg.DisplayRotation, cfg.Logger)
	}

	s.sink = scheduler.NewGuardedSink(sessionSink{s})
	sched, err := scheduler.New(scheduler.Config{
		Decoder: cfg.Decoder,
		Loop:    s.loop,
		Sink:    s.sink,
		Pool:    cfg.Pool,
		Loader:  cfg.Loader,
		Logger:  cfg.Logger,
	})
	if err != nil {
		if s.ownsLoop {
			s.loop.Stop()
		}
		return nil, err
	}
	s.sched = sched
	return s, nil
}

// call runs fn on the control loop and returns its error.
func (s *Session) call(ctx context.Context, fn func() error) error {
	var err error
	if cerr := s.loop.Call(ctx, func() {
		if s.closed {
			err = ErrClosed
			return
		}
		err = fn()
	}); cerr != nil {
		if errors.Is(cerr, mainloop.ErrStopped) {
			return ErrClosed
		}
		return cerr
	}
	return err
}

// Attach opens the camera and starts the preview loop. When the camera
// cannot be opened or started the session stays detached and the error is
// returned.
func (s *Session) Attach(ctx context.Context) error {
	return s.call(ctx, func() error {
		if s.camera == nil {
			return camera.ErrNoCamera
		}
		if err := s.camera.Open(ctx); err != nil {
			s.logger.Warn("camera open failed", "error", err)
			return err
		}
		if s.scanning {
			if err := s.camera.StartPreview(); err != nil {
				s.logger.Warn("camera preview failed", "error", err)
				_ = s.camera.Close()
				return err
			}
		}
		s.surface = true
		s.requestPreview()
		return nil
	})
}

// SurfaceChanged restarts the preview and re-arms frame delivery.
func (s *Session) SurfaceChanged(ctx context.Context) error {
	return s.call(ctx, func() error {
		if !s.surface || s.camera == nil {
			return nil
		}
		if _, ok := s.camera.Settings(); !ok {
			return nil
		}
		if err := s.camera.StopPreview(); err != nil {
			s.logger.Warn("camera stop failed", "error", err)
		}
		if s.scanning {
			if err := s.camera.StartPreview(); err != nil {
				return err
			}
		}
		s.requestPreview()
		return nil
	})
}

// Detach cancels any in-flight decode, stops the preview and releases the
// camera. The session can be attached again.
func (s *Session) Detach(ctx context.Context) error {
	return s.call(ctx, func() error {
		s.sched.Cancel()
		return s.releaseCamera()
	})
}

// StartScan starts the preview and re-arms frame delivery.
func (s *Session) StartScan(ctx context.Context) error {
	return s.call(ctx, func() error {
		s.scanning = true
		if s.camera == nil || !s.surface {
			return nil
		}
		if err := s.camera.StartPreview(); err != nil {
			return err
		}
		s.requestPreview()
		return nil
	})
}

// StopScan stops the preview. An in-flight live decode is cancelled.
func (s *Session) StopScan(ctx context.Context) error {
	return s.call(ctx, func() error {
		s.scanning = false
		if cur := s.sched.Current(); cur != nil && cur.Kind() == frame.KindLivePreview {
			s.sched.Cancel()
		}
		if s.camera == nil {
			return nil
		}
		return s.camera.StopPreview()
	})
}

// SetFlash sets the torch. The setting survives reattaching.
func (s *Session) SetFlash(ctx context.Context, on bool) error {
	return s.call(ctx, func() error {
		if s.camera == nil {
			return camera.ErrNoCamera
		}
		return s.camera.SetFlash(on)
	})
}

// Flash reports the requested torch state.
func (s *Session) Flash(ctx context.Context) (bool, error) {
	var on bool
	err := s.call(ctx, func() error {
		if s.camera != nil {
			on = s.camera.Flash()
		}
		return nil
	})
	return on, err
}

// DecodeFile cancels any in-flight decode and decodes the image at path.
// The outcome always reaches the listener: ScanSuccess or DecodeFailure.
func (s *Session) DecodeFile(ctx context.Context, path string) error {
	return s.call(ctx, func() error {
		_, err := s.sched.Submit(frame.NewStaticFile(path), true)
		return err
	})
}

// Resume re-arms the live preview after a success or a file decode. It
// cancels any in-flight decode. Safe to call from a listener callback.
func (s *Session) Resume() {
	s.loop.Post(func() {
		if !s.closed {
			s.requestPreview()
		}
	})
}

// Wait blocks until the most recent decode has finished and its outcome
// has been dispatched.
func (s *Session) Wait(ctx context.Context) error {
	if err := s.sched.Wait(ctx); err != nil {
		if errors.Is(err, mainloop.ErrStopped) {
			return ErrClosed
		}
		return err
	}
	if err := s.loop.Call(ctx, func() {}); err != nil && !errors.Is(err, mainloop.ErrStopped) {
		return err
	}
	return nil
}

// Preview reports the camera preview layout: the negotiated settings and
// the size of the preview surface measured inside the viewport.
func (s *Session) Preview(ctx context.Context) (camera.Settings, geometry.Size, bool, error) {
	var (
		settings camera.Settings
		measured geometry.Size
		ok       bool
	)
	err := s.call(ctx, func() error {
		if s.camera == nil {
			return nil
		}
		settings, ok = s.camera.Settings()
		if ok {
			measured = geometry.MeasurePreview(settings.PreviewResolution, s.viewport.Size())
		}
		return nil
	})
	return settings, measured, ok, err
}

// Close tears the session down. No listener call happens after Close
// returns.
func (s *Session) Close(ctx context.Context) error {
	s.sink.Close()
	err := s.call(ctx, func() error {
		s.closed = true
		s.sched.Close()
		return s.releaseCamera()
	})
	if errors.Is(err, ErrClosed) {
		err = nil
	}
	if s.ownsLoop {
		s.loop.Stop()
	}
	return err
}

func (s *Session) releaseCamera() error {
	s.surface = false
	if s.camera == nil {
		return nil
	}
	return s.camera.Close()
}

// requestPreview cancels the in-flight task and arms a one-shot frame.
func (s *Session) requestPreview() {
	s.sched.Cancel()
	if s.camera == nil || !s.scanning {
		return
	}
	s.camera.RequestFrame(s.onPreviewFrame)
}

// onPreviewFrame runs on a camera goroutine.
func (s *Session) onPreviewFrame(data []byte, size geometry.Size) {
	s.loop.Post(func() { s.handleFrame(data, size) })
}

func (s *Session) handleFrame(data []byte, size geometry.Size) {
	if s.closed || !s.surface || !s.scanning {
		return
	}
	if s.sched.Busy() {
		scheduler.RecordDroppedFrame()
		return
	}

	settings, _ := s.camera.Settings()
	region := s.decodeRegion(settings, size)
	f, err := frame.NewLivePreview(data, size.Width, size.Height, settings.Rotation, region)
	if err == nil {
		_, err = s.sched.Submit(f, false)
	}
	if err != nil {
		s.logger.Warn("dropping preview frame", "size", size.String(), "error", err)
		s.requestPreview()
	}
}

// decodeRegion maps the finder into the upright preview image. The preview
// surface is centred on the view, so the finder shifts by half the size
// difference. No finder scans the whole image.
func (s *Session) decodeRegion(settings camera.Settings, size geometry.Size) image.Rectangle {
	upright := size
	if settings.Rotation == 90 || settings.Rotation == 270 {
		upright = size.Flip()
	}
	full := image.Rect(0, 0, upright.Width, upright.Height)

	finder := s.viewport.Finder()
	if finder.Empty() {
		return full
	}
	view := s.viewport.Size()
	measured := geometry.MeasurePreview(settings.PreviewResolution, view)
	return geometry.TranslateFinder(finder, measured, view)
}

type sessionSink struct{ s *Session }

func (k sessionSink) Success(res *barcode.Result) {
	if rl, ok := k.s.listener.(ResultListener); ok {
		rl.ScanResult(res)
		return
	}
	k.s.listener.ScanSuccess(res.Text)
}

func (k sessionSink) Failure() { k.s.listener.DecodeFailure() }

func (k sessionSink) Rearm() { k.s.requestPreview() }
