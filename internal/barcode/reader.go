package barcode

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	gozxing "github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/aztec"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"golang.org/x/text/encoding/ianaindex"
)

type formatReader struct {
	format Format
	reader gozxing.Reader
}

// Reader is the gozxing-backed Decoder. It holds one gozxing reader per
// configured format and tries them in turn.
type Reader struct {
	readers []formatReader
	hints   map[gozxing.DecodeHintType]interface{}
	formats []Format
	logger  *slog.Logger
}

var _ Decoder = (*Reader)(nil)

// NewReader builds a Reader for opts. Formats without a gozxing reader are
// accepted and skipped with a warning.
func NewReader(opts Options, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	formats := opts.Formats
	if len(formats) == 0 {
		formats = AllFormats()
	}
	if opts.CharacterSet != "" {
		if err := ValidateCharset(opts.CharacterSet); err != nil {
			return nil, err
		}
	}

	r := &Reader{
		hints:   make(map[gozxing.DecodeHintType]interface{}),
		formats: slices.Clone(formats),
		logger:  logger,
	}

	var zxFormats []gozxing.BarcodeFormat
	var oneD, twoD []formatReader
	for _, f := range formats {
		zr := newFormatReader(f)
		if zr == nil {
			logger.Warn("barcode format has no reader, skipping", "format", f.String())
			continue
		}
		if bf, ok := mapFormatToZXing(f); ok {
			zxFormats = append(zxFormats, bf)
		}
		if isOneD(f) {
			oneD = append(oneD, formatReader{format: f, reader: zr})
		} else {
			twoD = append(twoD, formatReader{format: f, reader: zr})
		}
	}
	if len(oneD)+len(twoD) == 0 {
		return nil, fmt.Errorf("%w: no supported formats in %v", ErrInvalidOptions, formats)
	}

	// 1D readers are cheap and go first unless trying harder, where the
	// 2D readers get the first look.
	if opts.TryHarder {
		r.readers = slices.Concat(twoD, oneD)
		r.hints[gozxing.DecodeHintType_TRY_HARDER] = true
	} else {
		r.readers = slices.Concat(oneD, twoD)
	}
	r.hints[gozxing.DecodeHintType_POSSIBLE_FORMATS] = zxFormats
	if opts.CharacterSet != "" {
		r.hints[gozxing.DecodeHintType_CHARACTER_SET] = opts.CharacterSet
	}
	return r, nil
}

// ValidateCharset checks name against the IANA character set registry.
func ValidateCharset(name string) error {
	if _, err := ianaindex.IANA.Encoding(name); err != nil {
		return fmt.Errorf("%w: character set %q: %w", ErrInvalidOptions, name, err)
	}
	return nil
}

// Formats returns the configured formats, including unsupported ones.
func (r *Reader) Formats() []Format { return slices.Clone(r.formats) }

// Decode binarizes v and runs each reader until one recognizes a symbol.
// ctx is checked between readers.
func (r *Reader) Decode(ctx context.Context, v View) (*Result, error) {
	src, err := luminanceSource(v)
	if err != nil {
		return nil, err
	}
	bmp, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(src))
	if err != nil {
		return nil, fmt.Errorf("binarize: %w", err)
	}

	var lastErr error
	for _, fr := range r.readers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := fr.reader.Decode(bmp, r.hints)
		if err != nil || res == nil {
			lastErr = err
			continue
		}
		return convertResult(res), nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, lastErr)
	}
	return nil, ErrNotFound
}

// Reset clears state in every underlying reader.
func (r *Reader) Reset() {
	for _, fr := range r.readers {
		fr.reader.Reset()
	}
}

func luminanceSource(v View) (gozxing.LuminanceSource, error) {
	if v.img != nil {
		return gozxing.NewLuminanceSourceFromImage(v.img), nil
	}
	if v.lum == nil {
		return nil, fmt.Errorf("%w: empty view", ErrInvalidOptions)
	}
	return gozxing.NewPlanarYUVLuminanceSource(
		v.lum, v.width, v.height,
		v.rect.Min.X, v.rect.Min.Y, v.rect.Dx(), v.rect.Dy(),
		false)
}

func convertResult(r *gozxing.Result) *Result {
	out := &Result{
		Text:   r.GetText(),
		Format: mapFormatFromZXing(r.GetBarcodeFormat()),
	}
	if pts := r.GetResultPoints(); len(pts) > 0 {
		out.Points = make([]Point, 0, len(pts))
		for _, p := range pts {
			out.Points = append(out.Points, Point{X: p.GetX(), Y: p.GetY()})
		}
	}
	return out
}

func isOneD(f Format) bool { return slices.Contains(OneDFormats, f) }

// newFormatReader returns nil for formats gozxing cannot read: the RSS
// family and PDF417.
func newFormatReader(f Format) gozxing.Reader {
	switch f {
	case FormatQR:
		return qrcode.NewQRCodeReader()
	case FormatDataMatrix:
		return datamatrix.NewDataMatrixReader()
	case FormatAztec:
		return aztec.NewAztecReader()
	case FormatCode128:
		return oned.NewCode128Reader()
	case FormatCode39:
		return oned.NewCode39Reader()
	case FormatCode93:
		return oned.NewCode93Reader()
	case FormatEAN8:
		return oned.NewEAN8Reader()
	case FormatEAN13:
		return oned.NewEAN13Reader()
	case FormatUPCA:
		return oned.NewUPCAReader()
	case FormatUPCE:
		return oned.NewUPCEReader()
	case FormatITF:
		return oned.NewITFReader()
	case FormatCodabar:
		return oned.NewCodaBarReader()
	default:
		return nil
	}
}

func mapFormatToZXing(f Format) (gozxing.BarcodeFormat, bool) {
	switch f {
	case FormatQR:
		return gozxing.BarcodeFormat_QR_CODE, true
	case FormatDataMatrix:
		return gozxing.BarcodeFormat_DATA_MATRIX, true
	case FormatAztec:
		return gozxing.BarcodeFormat_AZTEC, true
	case FormatPDF417:
		return gozxing.BarcodeFormat_PDF_417, true
	case FormatCode128:
		return gozxing.BarcodeFormat_CODE_128, true
	case FormatCode39:
		return gozxing.BarcodeFormat_CODE_39, true
	case FormatCode93:
		return gozxing.BarcodeFormat_CODE_93, true
	case FormatEAN8:
		return gozxing.BarcodeFormat_EAN_8, true
	case FormatEAN13:
		return gozxing.BarcodeFormat_EAN_13, true
	case FormatUPCA:
		return gozxing.BarcodeFormat_UPC_A, true
	case FormatUPCE:
		return gozxing.BarcodeFormat_UPC_E, true
	case FormatITF:
		return gozxing.BarcodeFormat_ITF, true
	case FormatCodabar:
		return gozxing.BarcodeFormat_CODABAR, true
	default:
		return 0, false
	}
}

func mapFormatFromZXing(bf gozxing.BarcodeFormat) Format {
	switch bf {
	case gozxing.BarcodeFormat_QR_CODE:
		return FormatQR
	case gozxing.BarcodeFormat_DATA_MATRIX:
		return FormatDataMatrix
	case gozxing.BarcodeFormat_AZTEC:
		return FormatAztec
	case gozxing.BarcodeFormat_PDF_417:
		return FormatPDF417
	case gozxing.BarcodeFormat_CODE_128:
		return FormatCode128
	case gozxing.BarcodeFormat_CODE_39:
		return FormatCode39
	case gozxing.BarcodeFormat_CODE_93:
		return FormatCode93
	case gozxing.BarcodeFormat_EAN_8:
		return FormatEAN8
	case gozxing.BarcodeFormat_EAN_13:
		return FormatEAN13
	case gozxing.BarcodeFormat_UPC_A:
		return FormatUPCA
	case gozxing.BarcodeFormat_UPC_E:
		return FormatUPCE
	case gozxing.BarcodeFormat_ITF:
		return FormatITF
	case gozxing.BarcodeFormat_CODABAR:
		return FormatCodabar
	default:
		return FormatUnknown
	}
}
