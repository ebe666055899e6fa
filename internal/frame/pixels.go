package frame

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
)

// EncodeRGB565 packs img into little-endian RGB565, row-major.
func EncodeRGB565(img image.Image) ([]byte, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*2)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A == 0 {
				c = color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
			}
			v := uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
			binary.LittleEndian.PutUint16(out[i:], v)
			i += 2
		}
	}
	return out, w, h
}

// RGB565Image exposes a little-endian RGB565 buffer as an image.Image.
// Low bits are filled by replicating the high bits.
type RGB565Image struct {
	Pix    []byte
	Width  int
	Height int
}

// RGB565 returns the frame's pixels as an image. Only FormatRGB565 frames
// qualify.
func (f *Frame) RGB565() (*RGB565Image, error) {
	if f.Format != FormatRGB565 || len(f.Data) < f.Width*f.Height*2 {
		return nil, fmt.Errorf("%w: %v is not rgb565", ErrBadFrame, f.Format)
	}
	return &RGB565Image{Pix: f.Data, Width: f.Width, Height: f.Height}, nil
}

func (m *RGB565Image) ColorModel() color.Model { return color.RGBAModel }

func (m *RGB565Image) Bounds() image.Rectangle { return image.Rect(0, 0, m.Width, m.Height) }

func (m *RGB565Image) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return color.RGBA{}
	}
	v := binary.LittleEndian.Uint16(m.Pix[(y*m.Width+x)*2:])
	r5 := uint8(v>>11) & 0x1F
	g6 := uint8(v>>5) & 0x3F
	b5 := uint8(v) & 0x1F
	return color.RGBA{
		R: r5<<3 | r5>>2,
		G: g6<<2 | g6>>4,
		B: b5<<3 | b5>>2,
		A: 0xFF,
	}
}

// NV21FromGray builds an NV21 buffer whose Y plane is img and whose chroma
// plane is neutral. Odd dimensions are truncated to even.
func NV21FromGray(img *image.Gray) ([]byte, int, int) {
	b := img.Bounds()
	w, h := b.Dx()&^1, b.Dy()&^1
	out := make([]byte, w*h*3/2)
	for y := range h {
		src := (b.Min.Y+y-img.Rect.Min.Y)*img.Stride + (b.Min.X - img.Rect.Min.X)
		copy(out[y*w:(y+1)*w], img.Pix[src:src+w])
	}
	for i := w * h; i < len(out); i++ {
		out[i] = 0x80
	}
	return out, w, h
}
