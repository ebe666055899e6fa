// Package frame models the image buffers handed to the decode scheduler and
// the loaders that produce them.
package frame

import (
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/goscan/internal/geometry"
)

// Kind identifies where a frame came from.
type Kind int

const (
	// KindLivePreview is a one-shot camera preview buffer.
	KindLivePreview Kind = iota
	// KindStaticFile is a file path resolved off the control loop.
	KindStaticFile
)

func (k Kind) String() string {
	switch k {
	case KindLivePreview:
		return "live-preview"
	case KindStaticFile:
		return "static-file"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// PixelFormat describes the layout of Frame.Data.
type PixelFormat int

const (
	// FormatNV21 is a Y plane followed by interleaved VU at quarter resolution.
	FormatNV21 PixelFormat = iota
	// FormatLuminance is a bare 8-bit Y plane.
	FormatLuminance
	// FormatRGB565 is 16-bit little-endian RGB.
	FormatRGB565
)

func (p PixelFormat) String() string {
	switch p {
	case FormatNV21:
		return "nv21"
	case FormatLuminance:
		return "luminance"
	case FormatRGB565:
		return "rgb565"
	default:
		return fmt.Sprintf("format(%d)", int(p))
	}
}

// ExpectedLen returns the buffer length a width x height frame needs. NV21
// chroma is subsampled 2x2 with odd edges rounded up.
func (p PixelFormat) ExpectedLen(width, height int) int {
	switch p {
	case FormatNV21:
		return width*height + 2*((width+1)/2)*((height+1)/2)
	case FormatLuminance:
		return width * height
	case FormatRGB565:
		return width * height * 2
	default:
		return -1
	}
}

var (
	// ErrBadFrame reports a frame whose metadata does not match its buffer.
	ErrBadFrame = errors.New("frame: invalid frame")
	// ErrDecodeFile reports an unreadable or unparsable static file.
	ErrDecodeFile = errors.New("frame: cannot decode file")
	// ErrOutOfMemory reports an image too large to materialize.
	ErrOutOfMemory = errors.New("frame: image exceeds memory budget")
)

// Frame is one unit of decode work. The scheduler owns Data while the frame
// is in flight.
type Frame struct {
	Kind   Kind
	Format PixelFormat
	Data   []byte
	Width  int
	Height int
	// Rotation is the clockwise camera-relative angle, one of 0/90/180/270.
	Rotation int
	// Region is the decode rectangle in rotated image coordinates. The zero
	// rectangle selects the whole frame.
	Region image.Rectangle
	// Path is set for KindStaticFile frames before they are loaded.
	Path string
}

// NewLivePreview wraps a camera preview buffer.
func NewLivePreview(data []byte, width, height, rotation int, region image.Rectangle) (*Frame, error) {
	f := &Frame{
		Kind:     KindLivePreview,
		Format:   FormatNV21,
		Data:     data,
		Width:    width,
		Height:   height,
		Rotation: rotation,
		Region:   region,
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// NewStaticFile returns an unloaded frame for path.
func NewStaticFile(path string) *Frame {
	return &Frame{Kind: KindStaticFile, Path: path}
}

// Loaded reports whether the frame carries pixel data.
func (f *Frame) Loaded() bool { return f.Data != nil }

// Size returns the frame dimensions.
func (f *Frame) Size() geometry.Size { return geometry.Size{Width: f.Width, Height: f.Height} }

// Validate checks the buffer length against the declared format and size,
// and the rotation against the allowed angles. Unloaded static-file frames
// only need a path.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil", ErrBadFrame)
	}
	if f.Kind == KindStaticFile && !f.Loaded() {
		if f.Path == "" {
			return fmt.Errorf("%w: static file without path", ErrBadFrame)
		}
		return nil
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrBadFrame, f.Width, f.Height)
	}
	if !geometry.ValidRotation(f.Rotation) {
		return fmt.Errorf("%w: %d", geometry.ErrInvalidRotation, f.Rotation)
	}
	want := f.Format.ExpectedLen(f.Width, f.Height)
	if want < 0 {
		return fmt.Errorf("%w: unknown pixel format %v", ErrBadFrame, f.Format)
	}
	if len(f.Data) != want {
		return fmt.Errorf("%w: %v %dx%d needs %d bytes, have %d",
			ErrBadFrame, f.Format, f.Width, f.Height, want, len(f.Data))
	}
	return nil
}

// Luminance returns the Y plane of an NV21 or luminance frame.
func (f *Frame) Luminance() ([]byte, error) {
	switch f.Format {
	case FormatNV21, FormatLuminance:
		n := f.Width * f.Height
		if len(f.Data) < n {
			return nil, fmt.Errorf("%w: short luminance plane", ErrBadFrame)
		}
		return f.Data[:n], nil
	default:
		return nil, fmt.Errorf("%w: %v has no luminance plane", ErrBadFrame, f.Format)
	}
}
