package camera

import (
	"fmt"
	"sort"

	"github.com/MeKo-Tech/goscan/internal/geometry"
)

// MinPreviewPixels is the smallest preview area considered usable.
const MinPreviewPixels = 480 * 320

// Settings is the outcome of negotiating a device against a screen.
type Settings struct {
	// Rotation is the clockwise angle that turns sensor buffers upright.
	Rotation int
	// CameraResolution is the preview size in sensor orientation.
	CameraResolution geometry.Size
	// PreviewResolution is CameraResolution in screen orientation.
	PreviewResolution geometry.Size
}

// CameraRotation returns the clockwise angle from sensor to display.
// displayRotation may be any multiple of 90.
func CameraRotation(info Info, displayRotation int) (int, error) {
	display, err := geometry.NormalizeRotation(displayRotation)
	if err != nil {
		return 0, fmt.Errorf("display rotation: %w", err)
	}
	sensor, err := geometry.NormalizeRotation(info.Orientation)
	if err != nil {
		return 0, fmt.Errorf("sensor orientation: %w", err)
	}
	if info.Facing == FacingFront {
		sensor = (360 - sensor) % 360
	}
	return (360 + sensor - display) % 360, nil
}

// BestPreviewSize picks a preview size for screen. Sizes under
// MinPreviewPixels are ignored. A size whose landscape form equals screen
// wins; otherwise the largest remaining size; otherwise def.
func BestPreviewSize(supported []geometry.Size, def, screen geometry.Size) (geometry.Size, error) {
	if len(supported) == 0 {
		if def.Area() <= 0 {
			return geometry.Size{}, ErrNoPreviewSize
		}
		return def, nil
	}

	sizes := make([]geometry.Size, 0, len(supported))
	for _, s := range supported {
		if s.Area() >= MinPreviewPixels {
			sizes = append(sizes, s)
		}
	}
	sort.SliceStable(sizes, func(i, j int) bool { return sizes[i].Area() > sizes[j].Area() })

	for _, s := range sizes {
		flipped := s
		if s.Portrait() {
			flipped = s.Flip()
		}
		if flipped == screen {
			return s, nil
		}
	}
	if len(sizes) > 0 {
		return sizes[0], nil
	}
	if def.Area() <= 0 {
		return geometry.Size{}, ErrNoPreviewSize
	}
	return def, nil
}

// PreviewResolution turns a sensor-oriented camera size into screen
// orientation.
func PreviewResolution(cameraRes, screen geometry.Size) geometry.Size {
	if cameraRes.Portrait() == screen.Portrait() {
		return cameraRes
	}
	return cameraRes.Flip()
}

// Negotiate computes rotation and resolutions for info on screen.
func Negotiate(info Info, screen geometry.Size, displayRotation int) (Settings, error) {
	rot, err := CameraRotation(info, displayRotation)
	if err != nil {
		return Settings{}, err
	}
	res, err := BestPreviewSize(info.SupportedSizes, info.DefaultSize, screen)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Rotation:          rot,
		CameraResolution:  res,
		PreviewResolution: PreviewResolution(res, screen),
	}, nil
}
