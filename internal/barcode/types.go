package barcode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/MeKo-Tech/goscan/internal/geometry"
)

// Format represents a barcode symbology.
type Format int

const (
	FormatUnknown Format = iota
	FormatQR
	FormatDataMatrix
	FormatAztec
	FormatPDF417
	FormatCode128
	FormatCode39
	FormatCode93
	FormatEAN8
	FormatEAN13
	FormatUPCA
	FormatUPCE
	FormatITF
	FormatCodabar
	FormatRSS14
	FormatRSSExpanded
)

var formatNames = map[Format]string{
	FormatQR:          "QR_CODE",
	FormatDataMatrix:  "DATA_MATRIX",
	FormatAztec:       "AZTEC",
	FormatPDF417:      "PDF_417",
	FormatCode128:     "CODE_128",
	FormatCode39:      "CODE_39",
	FormatCode93:      "CODE_93",
	FormatEAN8:        "EAN_8",
	FormatEAN13:       "EAN_13",
	FormatUPCA:        "UPC_A",
	FormatUPCE:        "UPC_E",
	FormatITF:         "ITF",
	FormatCodabar:     "CODABAR",
	FormatRSS14:       "RSS_14",
	FormatRSSExpanded: "RSS_EXPANDED",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return "UNKNOWN"
}

// ParseFormat accepts the canonical upper-case names ("QR_CODE", "EAN_13")
// case-insensitively, with '-' treated as '_'.
func ParseFormat(name string) (Format, error) {
	n := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
	for f, s := range formatNames {
		if s == n {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("%w: unknown format %q", ErrInvalidOptions, name)
}

var (
	// ErrNotFound is returned when no reader recognized a symbol.
	ErrNotFound = errors.New("barcode: not found")
	// ErrInvalidOptions reports an unusable reader configuration.
	ErrInvalidOptions = errors.New("barcode: invalid options")
)

// Options controls reader construction.
type Options struct {
	// Formats constrains the set of symbologies to search. Empty means all.
	Formats []Format

	// TryHarder enables more exhaustive search (slower but more robust).
	TryHarder bool

	// CharacterSet is an IANA charset name used for byte-mode payloads.
	CharacterSet string
}

// Point is a point of interest in view coordinates.
type Point struct {
	X float64
	Y float64
}

// Result represents a decoded barcode.
type Result struct {
	Text   string
	Format Format
	Points []Point
}

// Decoder is the decode capability used by the scan scheduler.
type Decoder interface {
	// Decode looks for one symbol in v. Any failure to find one is an error.
	Decode(ctx context.Context, v View) (*Result, error)
	// Reset clears state carried between Decode calls.
	Reset()
}

// View is the decoder input: either a rectangle of a planar luminance buffer
// or a whole image.
type View struct {
	lum    []byte
	width  int
	height int
	rect   image.Rectangle
	img    image.Image
}

// NewLuminanceView selects rect of a width x height luminance plane without
// copying. The zero rectangle selects the whole plane. The rectangle is
// clipped to the plane; geometry.ErrEmptyRegion is returned if nothing is
// left.
func NewLuminanceView(data []byte, width, height int, rect image.Rectangle) (View, error) {
	if err := geometry.CheckBuffer(data, width, height); err != nil {
		return View{}, err
	}
	clipped, err := geometry.ClipRegion(rect, width, height)
	if err != nil {
		return View{}, err
	}
	return View{lum: data, width: width, height: height, rect: clipped}, nil
}

// NewImageView decodes the whole of img.
func NewImageView(img image.Image) (View, error) {
	if img == nil || img.Bounds().Empty() {
		return View{}, fmt.Errorf("%w: empty image", ErrInvalidOptions)
	}
	return View{img: img, rect: img.Bounds()}, nil
}

// Bounds returns the region the decoder will examine.
func (v View) Bounds() image.Rectangle { return v.rect }

// IsImage reports whether the view wraps an image rather than a luminance plane.
func (v View) IsImage() bool { return v.img != nil }
