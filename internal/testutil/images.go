package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"testing"

	"github.com/disintegration/imaging"
	gozxing "github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/goscan/internal/frame"
)

// QRCodeImage renders text as a size x size QR code on white.
func QRCodeImage(t *testing.T, text string, size int) *image.Gray {
	t.Helper()

	img, err := EncodeQRCode(text, size)
	require.NoError(t, err, "qr render")
	return img
}

// EncodeQRCode is QRCodeImage for callers without a *testing.T.
func EncodeQRCode(text string, size int) (*image.Gray, error) {
	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_MARGIN: 2,
	}
	bm, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, size, size, hints)
	if err != nil {
		return nil, err
	}
	return bitMatrixToGray(bm), nil
}

// Code128Image renders text as a width x height Code 128 symbol on white.
func Code128Image(t *testing.T, text string, width, height int) *image.Gray {
	t.Helper()

	img, err := EncodeCode128(text, width, height)
	require.NoError(t, err, "code128 render")
	return img
}

// EncodeCode128 is Code128Image for callers without a *testing.T.
func EncodeCode128(text string, width, height int) (*image.Gray, error) {
	bm, err := oned.NewCode128Writer().Encode(text, gozxing.BarcodeFormat_CODE_128, width, height, nil)
	if err != nil {
		return nil, err
	}
	return bitMatrixToGray(bm), nil
}

func bitMatrixToGray(bm *gozxing.BitMatrix) *image.Gray {
	w, h := bm.GetWidth(), bm.GetHeight()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			if bm.Get(x, y) {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 0xFF})
			}
		}
	}
	return img
}

// BlankImage returns a uniform grey image with no symbol in it.
func BlankImage(width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Gray{Y: 0xC0}}, image.Point{}, draw.Src)
	return img
}

// Place draws src onto a white width x height canvas with its top-left
// corner at at.
func Place(src image.Image, width, height int, at image.Point) *image.Gray {
	canvas := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(canvas, src.Bounds().Sub(src.Bounds().Min).Add(at), src, src.Bounds().Min, draw.Src)
	return canvas
}

// SensorFrame turns an upright image into the NV21 buffer a camera mounted
// at rotation degrees would deliver, so that rotating the buffer clockwise
// by rotation restores the upright image.
func SensorFrame(img image.Image, rotation int) ([]byte, int, int) {
	var sensor image.Image = img
	switch rotation {
	case 90:
		sensor = imaging.Rotate90(img)
	case 180:
		sensor = imaging.Rotate180(img)
	case 270:
		sensor = imaging.Rotate270(img)
	}
	return frame.NV21FromGray(ToGray(sensor))
}

// ToGray converts img to an 8-bit grey image anchored at the origin.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

// SavePNG writes img to path.
func SavePNG(t *testing.T, img image.Image, path string) {
	t.Helper()
	require.NoError(t, WritePNG(img, path))
}

// WritePNG encodes img as PNG into path.
func WritePNG(img image.Image, path string) error {
	f, err := os.Create(path) //nolint:gosec // G304: test output path
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
