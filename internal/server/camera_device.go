package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/goscan/internal/camera"
	"github.com/MeKo-Tech/goscan/internal/geometry"
)

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// eventWriter serializes event writes to one connection; gorilla
// connections allow a single concurrent writer.
type eventWriter struct {
	mu   sync.Mutex
	conn WebSocketConnWriter
}

func (w *eventWriter) send(ev CameraEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}

	w.mu.Lock()
	err = w.conn.WriteMessage(websocket.TextMessage, data)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}

// remoteDevice is a camera whose sensor is a websocket client. Frame
// requests go out as request_frame events; the client answers with one
// binary NV21 message per request.
type remoteDevice struct {
	out  *eventWriter
	info camera.Info

	mu         sync.Mutex
	size       geometry.Size
	previewing bool
	released   bool
	pending    camera.FrameCallback

	frames atomic.Int64
}

func newRemoteDevice(out *eventWriter, info camera.Info) *remoteDevice {
	return &remoteDevice{out: out, info: info, size: info.DefaultSize}
}

func (d *remoteDevice) Info() camera.Info { return d.info }

func (d *remoteDevice) Configure(p camera.Params) (geometry.Size, error) {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return geometry.Size{}, camera.ErrReleased
	}
	d.size = p.Resolution
	d.mu.Unlock()

	err := d.out.send(CameraEvent{
		Type:     eventConfigure,
		Width:    p.Resolution.Width,
		Height:   p.Resolution.Height,
		Rotation: p.Rotation,
		Flash:    p.Flash,
	})
	return p.Resolution, err
}

func (d *remoteDevice) SetFlash(on bool) error {
	if d.isReleased() {
		return camera.ErrReleased
	}
	return d.out.send(CameraEvent{Type: eventFlash, Flash: on})
}

func (d *remoteDevice) StartPreview() error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return camera.ErrReleased
	}
	d.previewing = true
	armed := d.pending != nil
	d.mu.Unlock()

	if err := d.out.send(CameraEvent{Type: eventPreviewStarted}); err != nil {
		return err
	}
	if armed {
		return d.out.send(CameraEvent{Type: eventRequestFrame})
	}
	return nil
}

func (d *remoteDevice) StopPreview() error {
	d.mu.Lock()
	was := d.previewing
	d.previewing = false
	d.pending = nil
	d.mu.Unlock()

	if !was {
		return nil
	}
	return d.out.send(CameraEvent{Type: eventPreviewStopped})
}

func (d *remoteDevice) RequestFrame(cb camera.FrameCallback) {
	d.mu.Lock()
	d.pending = cb
	send := d.previewing && !d.released
	d.mu.Unlock()

	if send {
		// A failed write means the connection is gone; the read loop ends
		// the session.
		_ = d.out.send(CameraEvent{Type: eventRequestFrame})
	}
}

func (d *remoteDevice) Release() error {
	d.mu.Lock()
	d.released = true
	d.previewing = false
	d.pending = nil
	d.mu.Unlock()
	return nil
}

// deliver hands a received frame to the armed callback. Frames nobody asked
// for are dropped.
func (d *remoteDevice) deliver(data []byte) bool {
	d.mu.Lock()
	cb := d.pending
	size := d.size
	ok := cb != nil && d.previewing && !d.released
	if ok {
		d.pending = nil
	}
	d.mu.Unlock()

	if !ok {
		cameraFramesTotal.WithLabelValues("unrequested").Inc()
		return false
	}
	cameraFramesTotal.WithLabelValues("delivered").Inc()
	d.frames.Add(1)
	cb(data, size)
	return true
}

func (d *remoteDevice) isReleased() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// remoteDriver opens the connection's single device, again after a release.
type remoteDriver struct {
	dev *remoteDevice
}

func (r remoteDriver) Open(ctx context.Context) (camera.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.dev.mu.Lock()
	r.dev.released = false
	r.dev.mu.Unlock()
	return r.dev, nil
}
