package geometry

import (
	"fmt"
	"image"
)

// Size is a width/height pair in pixels.
type Size struct {
	Width  int
	Height int
}

// Area returns Width*Height.
func (s Size) Area() int { return s.Width * s.Height }

// Portrait reports whether the size is taller than it is wide.
func (s Size) Portrait() bool { return s.Width < s.Height }

// Flip swaps width and height.
func (s Size) Flip() Size { return Size{Width: s.Height, Height: s.Width} }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// ClipRegion intersects r with a width x height image. A zero rectangle
// selects the whole image. ErrEmptyRegion is returned when nothing is left.
func ClipRegion(r image.Rectangle, width, height int) (image.Rectangle, error) {
	bounds := image.Rect(0, 0, width, height)
	if r == (image.Rectangle{}) {
		r = bounds
	}
	clipped := r.Canon().Intersect(bounds)
	if clipped.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: %v within %dx%d", ErrEmptyRegion, r, width, height)
	}
	return clipped, nil
}

// Crop copies the region r of a row-major width x height buffer into a dense
// buffer, clipping r to the image first.
func Crop(buf []byte, width, height int, r image.Rectangle) ([]byte, image.Rectangle, error) {
	if err := CheckBuffer(buf, width, height); err != nil {
		return nil, image.Rectangle{}, err
	}
	clipped, err := ClipRegion(r, width, height)
	if err != nil {
		return nil, image.Rectangle{}, err
	}

	w, h := clipped.Dx(), clipped.Dy()
	out := make([]byte, w*h)
	for y := range h {
		src := (clipped.Min.Y+y)*width + clipped.Min.X
		copy(out[y*w:(y+1)*w], buf[src:src+w])
	}
	return out, clipped, nil
}

// CenterOffset returns half the difference between an outer and an inner
// size. It is the letterbox offset of inner when centred inside outer.
func CenterOffset(outer, inner Size) image.Point {
	return image.Pt((outer.Width-inner.Width)/2, (outer.Height-inner.Height)/2)
}

// TranslateFinder maps a finder rectangle from the scan view's coordinates
// into preview-image coordinates. The preview surface is centred on the view,
// so the shift is half of the size difference between the two.
func TranslateFinder(finder image.Rectangle, preview, view Size) image.Rectangle {
	return finder.Add(CenterOffset(preview, view))
}

// MeasurePreview sizes the preview surface inside a container so that the
// preview keeps its aspect ratio and covers the container on at least one
// axis.
func MeasurePreview(preview, container Size) Size {
	if preview.Width <= 0 || preview.Height <= 0 {
		return container
	}
	ratio := float64(preview.Width) / float64(preview.Height)

	dw := preview.Width - container.Width
	dh := preview.Height - container.Height

	switch {
	case dw < 0 && dh < 0:
		if abs(dw) > abs(dh) {
			return Size{Width: container.Width, Height: int(float64(container.Width) / ratio)}
		}
		return Size{Width: int(float64(container.Height) * ratio), Height: container.Height}
	case dw < 0 && dh > 0:
		return Size{Width: container.Width, Height: int(float64(container.Width) / ratio)}
	case dw > 0 && dh < 0:
		return Size{Width: int(float64(container.Height) * ratio), Height: container.Height}
	default:
		return preview
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
