// Package camera defines the preview-capable device capability the scan
// session drives, the parameter negotiation that configures it, and a
// replay device that serves image files as preview frames.
package camera

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/goscan/internal/geometry"
)

var (
	// ErrNoCamera is returned when a driver has no device to open.
	ErrNoCamera = errors.New("camera: no camera available")
	// ErrNoPreviewSize is returned when a device reports no usable preview size.
	ErrNoPreviewSize = errors.New("camera: no preview size")
	// ErrReleased is returned by operations on a released device.
	ErrReleased = errors.New("camera: device released")
)

// Facing is the side of the device the camera looks out of.
type Facing int

const (
	FacingBack Facing = iota
	FacingFront
)

func (f Facing) String() string {
	if f == FacingFront {
		return "front"
	}
	return "back"
}

// ParseFacing accepts "back" or "front".
func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "back":
		return FacingBack, nil
	case "front":
		return FacingFront, nil
	default:
		return FacingBack, fmt.Errorf("camera: unknown facing %q", s)
	}
}

// Info is what a device reports about itself once opened.
type Info struct {
	Facing Facing
	// Orientation is the clockwise angle from the device's natural
	// orientation to the sensor's, one of 0/90/180/270.
	Orientation    int
	SupportedSizes []geometry.Size
	DefaultSize    geometry.Size
}

// Params is a preview configuration.
type Params struct {
	Resolution geometry.Size
	// Rotation is the clockwise display orientation applied to the preview.
	Rotation  int
	Flash     bool
	AutoFocus bool
}

// FrameCallback receives one NV21 preview buffer in sensor orientation.
type FrameCallback func(data []byte, size geometry.Size)

// Device is an opened camera.
type Device interface {
	Info() Info
	// Configure applies p and returns the preview size actually in effect.
	Configure(p Params) (geometry.Size, error)
	SetFlash(on bool) error
	StartPreview() error
	StopPreview() error
	// RequestFrame arms cb for the next preview frame. Only one callback is
	// armed at a time; a later request replaces an earlier one. Delivery
	// happens on a device goroutine.
	RequestFrame(cb FrameCallback)
	Release() error
}

// Driver opens devices.
type Driver interface {
	Open(ctx context.Context) (Device, error)
}
