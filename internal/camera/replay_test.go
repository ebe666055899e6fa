package camera

import (
	"context"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/goscan/internal/barcode"
	"github.com/MeKo-Tech/goscan/internal/geometry"
	"github.com/MeKo-Tech/goscan/internal/testutil"
)

type delivered struct {
	data []byte
	size geometry.Size
}

func collect(ch chan<- delivered) FrameCallback {
	return func(data []byte, size geometry.Size) { ch <- delivered{data: data, size: size} }
}

func openReplay(t *testing.T, d *ReplayDriver, p Params) Device {
	t.Helper()
	dev, err := d.Open(context.Background())
	require.NoError(t, err)
	_, err = dev.Configure(p)
	require.NoError(t, err)
	require.NoError(t, dev.StartPreview())
	t.Cleanup(func() { _ = dev.Release() })
	return dev
}

func receive(t *testing.T, ch <-chan delivered) delivered {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("no frame delivered")
		return delivered{}
	}
}

func TestReplay_DeliversRotatedSensorFrame(t *testing.T) {
	upright := testutil.Place(testutil.QRCodeImage(t, "replay", 160), 200, 300, image.Pt(20, 70))
	d := NewImageReplayDriver([]image.Image{upright}, ReplayOptions{Orientation: 90})

	params := Params{Resolution: sz(640, 480), Rotation: 90}
	dev := openReplay(t, d, params)
	assert.Equal(t, 90, dev.Info().Orientation)

	ch := make(chan delivered, 1)
	dev.RequestFrame(collect(ch))
	f := receive(t, ch)

	assert.Equal(t, sz(640, 480), f.size)
	require.Len(t, f.data, 640*480*3/2)

	lum, w, h, err := geometry.Rotate(f.data, f.size.Width, f.size.Height, 90)
	require.NoError(t, err)
	assert.Equal(t, 480, w)
	assert.Equal(t, 640, h)

	reader, err := barcode.NewReader(barcode.Options{Formats: []barcode.Format{barcode.FormatQR}}, nil)
	require.NoError(t, err)
	view, err := barcode.NewLuminanceView(lum, w, h, image.Rect(0, 0, w, h))
	require.NoError(t, err)
	res, err := reader.Decode(context.Background(), view)
	require.NoError(t, err)
	assert.Equal(t, "replay", res.Text)
}

func TestReplay_OneFramePerRequest(t *testing.T) {
	d := NewImageReplayDriver([]image.Image{testutil.BlankImage(64, 64), testutil.BlankImage(64, 64)},
		ReplayOptions{Interval: time.Millisecond})
	dev := openReplay(t, d, Params{Resolution: sz(64, 48)})

	ch := make(chan delivered, 4)
	dev.RequestFrame(collect(ch))
	receive(t, ch)

	select {
	case <-ch:
		t.Fatal("frame delivered without a request")
	case <-time.After(50 * time.Millisecond):
	}

	dev.RequestFrame(collect(ch))
	receive(t, ch)
}

func TestReplay_ExhaustedWithoutLoop(t *testing.T) {
	d := NewImageReplayDriver([]image.Image{testutil.BlankImage(32, 32)}, ReplayOptions{})
	dev := openReplay(t, d, Params{Resolution: sz(32, 32)})

	ch := make(chan delivered, 1)
	dev.RequestFrame(collect(ch))
	receive(t, ch)

	select {
	case <-d.Exhausted():
		t.Fatal("exhausted before the next request")
	default:
	}

	dev.RequestFrame(collect(ch))
	select {
	case <-d.Exhausted():
	case <-time.After(5 * time.Second):
		t.Fatal("driver never reported exhaustion")
	}
}

func TestReplay_LoopWraps(t *testing.T) {
	d := NewImageReplayDriver([]image.Image{testutil.BlankImage(32, 32)}, ReplayOptions{Loop: true})
	dev := openReplay(t, d, Params{Resolution: sz(32, 32)})

	ch := make(chan delivered, 1)
	for range 3 {
		dev.RequestFrame(collect(ch))
		receive(t, ch)
	}
}

func TestReplay_DeviceLifecycle(t *testing.T) {
	d := NewImageReplayDriver([]image.Image{testutil.BlankImage(32, 32)}, ReplayOptions{})
	dev, err := d.Open(context.Background())
	require.NoError(t, err)

	assert.Error(t, dev.StartPreview(), "preview needs a configuration")
	_, err = dev.Configure(Params{Resolution: sz(0, 10)})
	assert.Error(t, err)
	_, err = dev.Configure(Params{Resolution: sz(32, 32), Rotation: 45})
	assert.ErrorIs(t, err, geometry.ErrInvalidRotation)

	applied, err := dev.Configure(Params{Resolution: sz(32, 32)})
	require.NoError(t, err)
	assert.Equal(t, sz(32, 32), applied)
	require.NoError(t, dev.StartPreview())
	require.NoError(t, dev.StopPreview())
	require.NoError(t, dev.StopPreview())

	require.NoError(t, dev.Release())
	assert.ErrorIs(t, dev.StartPreview(), ErrReleased)
	assert.ErrorIs(t, dev.SetFlash(true), ErrReleased)
	_, err = dev.Configure(Params{Resolution: sz(32, 32)})
	assert.ErrorIs(t, err, ErrReleased)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Open(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewReplayDriver_Files(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qr.png")
	testutil.SavePNG(t, testutil.QRCodeImage(t, "file", 120), path)

	d, err := NewReplayDriver([]string{path}, ReplayOptions{})
	require.NoError(t, err)
	dev := openReplay(t, d, Params{Resolution: sz(160, 160)})
	assert.Equal(t, DefaultReplaySizes[0], dev.Info().DefaultSize)

	ch := make(chan delivered, 1)
	dev.RequestFrame(collect(ch))
	f := receive(t, ch)
	assert.Equal(t, sz(160, 160), f.size)

	_, err = NewReplayDriver(nil, ReplayOptions{})
	assert.ErrorIs(t, err, ErrNoCamera)
	_, err = NewReplayDriver([]string{filepath.Join(dir, "notes.txt")}, ReplayOptions{})
	assert.Error(t, err)
	_, err = NewReplayDriver([]string{filepath.Join(dir, "missing.png")}, ReplayOptions{})
	assert.Error(t, err)
}
