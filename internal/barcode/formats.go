package barcode

import (
	"fmt"
	"slices"
	"strings"
)

// Scan modes select a predefined group of formats.
const (
	ModeOneD       = "ONE_D_MODE"
	ModeProduct    = "PRODUCT_MODE"
	ModeQRCode     = "QR_CODE_MODE"
	ModeDataMatrix = "DATA_MATRIX_MODE"
	ModeAztec      = "AZTEC_MODE"
	ModePDF417     = "PDF417_MODE"
)

var (
	// ProductFormats are the retail one-dimensional symbologies.
	ProductFormats = []Format{FormatUPCA, FormatUPCE, FormatEAN13, FormatEAN8, FormatRSS14, FormatRSSExpanded}
	// IndustrialFormats are the logistics one-dimensional symbologies.
	IndustrialFormats = []Format{FormatCode39, FormatCode93, FormatCode128, FormatITF, FormatCodabar}
	// OneDFormats is ProductFormats followed by IndustrialFormats.
	OneDFormats = slices.Concat(ProductFormats, IndustrialFormats)

	QRCodeFormats     = []Format{FormatQR}
	DataMatrixFormats = []Format{FormatDataMatrix}
	AztecFormats      = []Format{FormatAztec}
	PDF417Formats     = []Format{FormatPDF417}
)

var formatsForMode = map[string][]Format{
	ModeOneD:       OneDFormats,
	ModeProduct:    ProductFormats,
	ModeQRCode:     QRCodeFormats,
	ModeDataMatrix: DataMatrixFormats,
	ModeAztec:      AztecFormats,
	ModePDF417:     PDF417Formats,
}

// Modes returns the known mode strings in a stable order.
func Modes() []string {
	return []string{ModeOneD, ModeProduct, ModeQRCode, ModeDataMatrix, ModeAztec, ModePDF417}
}

// AllFormats is every group a scanner looks for when nothing is configured.
func AllFormats() []Format {
	return slices.Concat(OneDFormats, QRCodeFormats, DataMatrixFormats, AztecFormats, PDF417Formats)
}

// FormatsForMode returns a copy of the format group for mode.
func FormatsForMode(mode string) ([]Format, error) {
	fs, ok := formatsForMode[strings.ToUpper(strings.TrimSpace(mode))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidOptions, mode)
	}
	return slices.Clone(fs), nil
}

// ResolveFormats picks the formats to scan for. An explicit list wins over
// mode; with neither, all groups are used.
func ResolveFormats(mode string, names []string) ([]Format, error) {
	if len(names) > 0 {
		out := make([]Format, 0, len(names))
		for _, n := range names {
			f, err := ParseFormat(n)
			if err != nil {
				return nil, err
			}
			if !slices.Contains(out, f) {
				out = append(out, f)
			}
		}
		return out, nil
	}
	if strings.TrimSpace(mode) != "" {
		return FormatsForMode(mode)
	}
	return AllFormats(), nil
}
