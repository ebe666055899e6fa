package frame

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/goscan/internal/geometry"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestSampleSize(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		reqW, reqH int
		want       int
	}{
		{"smaller than viewport", 100, 100, 1080, 1920, 1},
		{"only one axis large", 4000, 3000, 1080, 1920, 1},
		{"both axes large", 10000, 8000, 1080, 1920, 4},
		{"square", 5000, 5000, 1000, 1000, 4},
		{"exact double is not halved", 400, 300, 100, 100, 2},
		{"zero request", 5000, 5000, 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SampleSize(tt.w, tt.h, tt.reqW, tt.reqH))
		})
	}
}

func TestScaledSize(t *testing.T) {
	sz := func(w, h int) geometry.Size { return geometry.Size{Width: w, Height: h} }
	tests := []struct {
		name                  string
		orig, sampled, target geometry.Size
		want                  geometry.Size
	}{
		{"fits width", sz(4000, 3000), sz(4000, 3000), sz(1080, 1920), sz(1080, 810)},
		{"scales the subsample", sz(10000, 8000), sz(2500, 2000), sz(1080, 1920), sz(270, 216)},
		{"square subsample", sz(8000, 8000), sz(2000, 2000), sz(1000, 1000), sz(250, 250)},
		{"never upscales", sz(100, 50), sz(100, 50), sz(1080, 1920), sz(100, 50)},
		{"rounds half up", sz(10, 15), sz(10, 15), sz(5, 100), sz(5, 8)},
		{"at least one pixel", sz(1000, 1), sz(1000, 1), sz(10, 10), sz(10, 1)},
		{"no target", sz(10, 10), sz(5, 5), sz(0, 0), sz(5, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScaledSize(tt.orig, tt.sampled, tt.target))
		})
	}
}

func TestFileLoader_LoadSmallImage(t *testing.T) {
	path := writePNG(t, t.TempDir(), "small.png", 64, 48)
	l := NewFileLoader(geometry.Size{Width: 1080, Height: 1920}, 0, nil)

	f, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, KindStaticFile, f.Kind)
	assert.Equal(t, FormatRGB565, f.Format)
	assert.Equal(t, 64, f.Width)
	assert.Equal(t, 48, f.Height)
	assert.Equal(t, path, f.Path)
	assert.NoError(t, f.Validate())
}

func TestFileLoader_DownsamplesLargeImage(t *testing.T) {
	path := writePNG(t, t.TempDir(), "large.png", 400, 300)
	l := NewFileLoader(geometry.Size{Width: 100, Height: 100}, 0, nil)

	f, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	// Sample size 2 gives 200x150, then the 4x density ratio applies.
	assert.Equal(t, 50, f.Width)
	assert.Equal(t, 38, f.Height)
	assert.Len(t, f.Data, 50*38*2)
}

func TestFileLoader_DensityAppliesAfterSubsample(t *testing.T) {
	path := writePNG(t, t.TempDir(), "square.png", 2000, 2000)
	l := NewFileLoader(geometry.Size{Width: 250, Height: 250}, 0, nil)

	f, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	// Sample size 4 gives 500x500; 500/8 = 62.5 rounds up.
	assert.Equal(t, 63, f.Width)
	assert.Equal(t, 63, f.Height)
}

func TestFileLoader_Errors(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("definitely not a png"), 0o600))
	fakePDF := filepath.Join(dir, "fake.pdf")
	require.NoError(t, os.WriteFile(fakePDF, []byte("%PDF-garbage"), 0o600))

	l := NewFileLoader(geometry.Size{Width: 100, Height: 100}, 0, nil)
	tests := []struct {
		name   string
		path   string
		wantOp string
	}{
		{"empty path", "", "open"},
		{"missing file", filepath.Join(dir, "missing.png"), "open"},
		{"corrupt image", corrupt, "bounds"},
		{"unreadable pdf", fakePDF, "extract"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := l.Load(context.Background(), tt.path)
			assert.Nil(t, f)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecodeFile)

			var le *LoadError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, tt.wantOp, le.Op)
		})
	}
}

func TestFileLoader_PixelBudget(t *testing.T) {
	path := writePNG(t, t.TempDir(), "big.png", 64, 48)
	l := NewFileLoader(geometry.Size{Width: 100, Height: 100}, 100, nil)

	_, err := l.Load(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.NotErrorIs(t, err, ErrDecodeFile)
}

func TestFileLoader_Cancelled(t *testing.T) {
	path := writePNG(t, t.TempDir(), "small.png", 16, 16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileLoader(geometry.Size{Width: 100, Height: 100}, 0, nil).Load(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("a.PNG"))
	assert.True(t, IsSupported("scan.pdf"))
	assert.True(t, IsSupported("x.webp"))
	assert.False(t, IsSupported("notes.txt"))
	assert.False(t, IsSupported("noext"))
}
