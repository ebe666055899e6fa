package server

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// cameraConn is one connected websocket camera.
type cameraConn struct {
	id         string
	remoteAddr string
	since      time.Time
	device     *remoteDevice
	scans      atomic.Int64
	closeFn    func() error
}

// cameraRegistry tracks live camera connections by session id.
type cameraRegistry struct {
	mu    sync.RWMutex
	conns map[string]*cameraConn
}

func newCameraRegistry() *cameraRegistry {
	return &cameraRegistry{conns: make(map[string]*cameraConn)}
}

func (r *cameraRegistry) add(c *cameraConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.id] = c
}

func (r *cameraRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

func (r *cameraRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// list returns the connections ordered by connect time.
func (r *cameraRegistry) list() []SessionInfo {
	r.mu.RLock()
	conns := make([]*cameraConn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	slices.SortFunc(conns, func(a, b *cameraConn) int {
		if c := a.since.Compare(b.since); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})

	out := make([]SessionInfo, len(conns))
	for i, c := range conns {
		out[i] = SessionInfo{
			ID:         c.id,
			RemoteAddr: c.remoteAddr,
			Since:      c.since.UTC().Format(time.RFC3339),
			Scans:      c.scans.Load(),
		}
		if c.device != nil {
			out[i].Frames = c.device.frames.Load()
		}
	}
	return out
}

// closeAll closes every connection. Connections remove themselves as their
// handlers return.
func (r *cameraRegistry) closeAll() error {
	r.mu.RLock()
	conns := make([]*cameraConn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	var errs []error
	for _, c := range conns {
		if c.closeFn != nil {
			errs = append(errs, c.closeFn())
		}
	}
	return errors.Join(errs...)
}
