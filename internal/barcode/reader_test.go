package barcode

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/goscan/internal/geometry"
	"github.com/MeKo-Tech/goscan/internal/testutil"
)

func newTestReader(t *testing.T, opts Options) *Reader {
	t.Helper()
	r, err := NewReader(opts, nil)
	require.NoError(t, err)
	return r
}

func TestReader_DecodeQRImage(t *testing.T) {
	r := newTestReader(t, Options{Formats: QRCodeFormats})
	v, err := NewImageView(testutil.QRCodeImage(t, "hello goscan", 200))
	require.NoError(t, err)

	res, err := r.Decode(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, "hello goscan", res.Text)
	assert.Equal(t, FormatQR, res.Format)
	assert.NotEmpty(t, res.Points)
}

func TestReader_DecodeLuminanceRegion(t *testing.T) {
	qr := testutil.QRCodeImage(t, "roi", 160)
	canvas := testutil.Place(qr, 400, 300, image.Pt(200, 100))

	r := newTestReader(t, Options{Formats: []Format{FormatQR, FormatDataMatrix, FormatAztec}})
	inside, err := NewLuminanceView(canvas.Pix, 400, 300, image.Rect(180, 80, 380, 280))
	require.NoError(t, err)
	res, err := r.Decode(context.Background(), inside)
	require.NoError(t, err)
	assert.Equal(t, "roi", res.Text)
	r.Reset()

	outside, err := NewLuminanceView(canvas.Pix, 400, 300, image.Rect(0, 0, 150, 150))
	require.NoError(t, err)
	_, err = r.Decode(context.Background(), outside)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReader_DecodeCode128(t *testing.T) {
	sym := testutil.Code128Image(t, "GOSCAN-128", 300, 80)
	canvas := testutil.Place(sym, 360, 120, image.Pt(30, 20))

	r := newTestReader(t, Options{Formats: OneDFormats})
	v, err := NewImageView(canvas)
	require.NoError(t, err)
	res, err := r.Decode(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, "GOSCAN-128", res.Text)
	assert.Equal(t, FormatCode128, res.Format)
}

func TestReader_NotFound(t *testing.T) {
	r := newTestReader(t, Options{TryHarder: true})
	v, err := NewImageView(testutil.BlankImage(120, 90))
	require.NoError(t, err)

	_, err = r.Decode(context.Background(), v)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReader_Cancelled(t *testing.T) {
	r := newTestReader(t, Options{})
	v, err := NewImageView(testutil.QRCodeImage(t, "late", 120))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Decode(ctx, v)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReader_ResetBetweenDecodes(t *testing.T) {
	r := newTestReader(t, Options{Formats: QRCodeFormats})
	for _, text := range []string{"first", "second"} {
		v, err := NewImageView(testutil.QRCodeImage(t, text, 150))
		require.NoError(t, err)
		res, err := r.Decode(context.Background(), v)
		require.NoError(t, err)
		assert.Equal(t, text, res.Text)
		r.Reset()
	}
}

func TestNewReader_Options(t *testing.T) {
	_, err := NewReader(Options{CharacterSet: "no-such-charset"}, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	r, err := NewReader(Options{CharacterSet: "UTF-8"}, nil)
	require.NoError(t, err)
	assert.Equal(t, AllFormats(), r.Formats())

	_, err = NewReader(Options{Formats: []Format{FormatRSS14, FormatRSSExpanded}}, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions, "no format with a reader")

	r, err = NewReader(Options{Formats: ProductFormats}, nil)
	require.NoError(t, err)
	assert.Len(t, r.readers, 4, "RSS formats are skipped")
}

func TestNewReader_PDF417Mode(t *testing.T) {
	formats, err := FormatsForMode(ModePDF417)
	require.NoError(t, err)

	_, err = NewReader(Options{Formats: formats}, nil)
	require.ErrorIs(t, err, ErrInvalidOptions)
	assert.Contains(t, err.Error(), "no supported formats")

	r, err := NewReader(Options{Formats: []Format{FormatPDF417, FormatQR}}, nil)
	require.NoError(t, err)
	require.Len(t, r.readers, 1)
	assert.Equal(t, FormatQR, r.readers[0].format)
	assert.Equal(t, []Format{FormatPDF417, FormatQR}, r.Formats())
}

func TestNewLuminanceView(t *testing.T) {
	buf := make([]byte, 20*10)

	v, err := NewLuminanceView(buf, 20, 10, image.Rectangle{})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), v.Bounds())
	assert.False(t, v.IsImage())

	v, err = NewLuminanceView(buf, 20, 10, image.Rect(15, 5, 40, 40))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(15, 5, 20, 10), v.Bounds())

	_, err = NewLuminanceView(buf, 20, 10, image.Rect(30, 30, 40, 40))
	assert.ErrorIs(t, err, geometry.ErrEmptyRegion)

	_, err = NewLuminanceView(buf[:10], 20, 10, image.Rectangle{})
	assert.ErrorIs(t, err, geometry.ErrShortBuffer)

	_, err = NewImageView(nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}
