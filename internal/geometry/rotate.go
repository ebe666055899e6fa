// Package geometry converts raw preview buffers into the orientation and
// region the barcode decoder expects.
package geometry

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRotation is returned for angles outside {0, 90, 180, 270}.
	ErrInvalidRotation = errors.New("geometry: invalid rotation")
	// ErrEmptyRegion is returned when a clipped region has zero area.
	ErrEmptyRegion = errors.New("geometry: empty region")
	// ErrShortBuffer is returned when a buffer holds fewer than width*height samples.
	ErrShortBuffer = errors.New("geometry: buffer shorter than width*height")
)

// ValidRotation reports whether angle is one of 0, 90, 180 or 270.
func ValidRotation(angle int) bool {
	switch angle {
	case 0, 90, 180, 270:
		return true
	}
	return false
}

// NormalizeRotation maps any multiple of 90 (including negatives) into
// {0, 90, 180, 270}.
func NormalizeRotation(angle int) (int, error) {
	if angle%90 != 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRotation, angle)
	}
	return ((angle % 360) + 360) % 360, nil
}

// Rotate turns the first width*height samples of buf clockwise by angle and
// returns the rotated samples with their new dimensions.
//
// For angle 0 the input slice itself is returned; callers that hand the
// result to another goroutine while still writing buf must copy it.
func Rotate(buf []byte, width, height, angle int) ([]byte, int, int, error) {
	if angle == 0 {
		if err := CheckBuffer(buf, width, height); err != nil {
			return nil, 0, 0, err
		}
		return buf, width, height, nil
	}
	return RotateInto(nil, buf, width, height, angle)
}

// RotateInto is Rotate with a caller-supplied destination. dst is grown when
// its capacity is below width*height. Angle 0 copies into dst.
func RotateInto(dst, buf []byte, width, height, angle int) ([]byte, int, int, error) {
	if !ValidRotation(angle) {
		return nil, 0, 0, fmt.Errorf("%w: %d", ErrInvalidRotation, angle)
	}
	if err := CheckBuffer(buf, width, height); err != nil {
		return nil, 0, 0, err
	}

	n := width * height
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	switch angle {
	case 0:
		copy(dst, buf[:n])
		return dst, width, height, nil
	case 90:
		for y := range height {
			row := y * width
			for x := range width {
				dst[x*height+height-y-1] = buf[row+x]
			}
		}
		return dst, height, width, nil
	case 180:
		for i := range n {
			dst[i] = buf[n-i-1]
		}
		return dst, width, height, nil
	default: // 270
		for y := range height {
			row := y * width
			for x := range width {
				dst[(width-x-1)*height+y] = buf[row+x]
			}
		}
		return dst, height, width, nil
	}
}

// CheckBuffer verifies that buf holds at least width*height samples.
func CheckBuffer(buf []byte, width, height int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("geometry: negative dimensions %dx%d", width, height)
	}
	if len(buf) < width*height {
		return fmt.Errorf("%w: have %d, need %d", ErrShortBuffer, len(buf), width*height)
	}
	return nil
}
