package frame

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/MeKo-Tech/goscan/internal/geometry"
)

// DefaultMaxPixels is the decoded pixel budget of a single static file.
const DefaultMaxPixels = 64 * 1024 * 1024

// SupportedExtensions lists the file extensions FileLoader accepts.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp", ".pdf"}

// IsSupported reports whether path has a supported extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// LoadError describes a failed static-file load.
type LoadError struct {
	Op   string
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SampleSize returns the power-of-two subsample factor for an image of
// width x height displayed in a reqWidth x reqHeight viewport. The factor
// doubles while both halved dimensions divided by it still exceed the
// request.
func SampleSize(width, height, reqWidth, reqHeight int) int {
	s := 1
	if reqWidth <= 0 || reqHeight <= 0 {
		return s
	}
	if height > reqHeight || width > reqWidth {
		halfH, halfW := height/2, width/2
		for halfH/s > reqHeight && halfW/s > reqWidth {
			s *= 2
		}
	}
	return s
}

// ScaledSize returns the final bitmap size for an original of size orig that
// was subsampled to sampled. The subsampled bitmap is divided by the larger
// of the original's width and height ratios to target, rounded half up and
// at least one pixel. Ratios at or below one leave sampled unchanged.
func ScaledSize(orig, sampled, target geometry.Size) geometry.Size {
	if target.Width <= 0 || target.Height <= 0 {
		return sampled
	}
	ws := float64(orig.Width) / float64(target.Width)
	hs := float64(orig.Height) / float64(target.Height)
	scale := math.Max(ws, hs)
	if scale <= 1 {
		return sampled
	}
	w := max(1, int(math.Floor(float64(sampled.Width)/scale+0.5)))
	h := max(1, int(math.Floor(float64(sampled.Height)/scale+0.5)))
	return geometry.Size{Width: w, Height: h}
}

// FileLoader resolves static-file frames into RGB565 bitmaps sized for a
// viewport.
type FileLoader struct {
	target    geometry.Size
	maxPixels int
	logger    *slog.Logger
}

// NewFileLoader creates a loader for the given viewport. maxPixels <= 0
// selects DefaultMaxPixels.
func NewFileLoader(target geometry.Size, maxPixels int, logger *slog.Logger) *FileLoader {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileLoader{target: target, maxPixels: maxPixels, logger: logger}
}

// Target returns the viewport the loader scales towards.
func (l *FileLoader) Target() geometry.Size { return l.target }

// Load reads path and returns a loaded KindStaticFile frame. Failures are
// *LoadError values wrapping ErrDecodeFile or ErrOutOfMemory.
func (l *FileLoader) Load(ctx context.Context, path string) (f *Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			debug.FreeOSMemory()
			f = nil
			err = &LoadError{Op: "decode", Path: path, Err: fmt.Errorf("%w: panic: %v", ErrDecodeFile, r)}
		}
	}()

	if path == "" {
		return nil, &LoadError{Op: "open", Path: path, Err: fmt.Errorf("%w: empty path", ErrDecodeFile)}
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return l.loadPDF(ctx, path)
	}
	return l.loadImage(ctx, path)
}

func (l *FileLoader) loadImage(ctx context.Context, path string) (*Frame, error) {
	fh, err := os.Open(path) //nolint:gosec // G304: caller-supplied scan path
	if err != nil {
		return nil, &LoadError{Op: "open", Path: path, Err: fmt.Errorf("%w: %w", ErrDecodeFile, err)}
	}
	defer func() { _ = fh.Close() }()

	cfg, format, err := image.DecodeConfig(fh)
	if err != nil {
		return nil, &LoadError{Op: "bounds", Path: path, Err: fmt.Errorf("%w: %w", ErrDecodeFile, err)}
	}
	if err := l.checkBudget(path, cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		return nil, &LoadError{Op: "open", Path: path, Err: fmt.Errorf("%w: %w", ErrDecodeFile, err)}
	}

	img, _, err := image.Decode(fh)
	if err != nil {
		return nil, &LoadError{Op: "decode", Path: path, Err: fmt.Errorf("%w: %w", ErrDecodeFile, err)}
	}
	l.logger.Debug("static file decoded", "path", path, "format", format,
		"width", cfg.Width, "height", cfg.Height)
	return l.fromImage(ctx, path, img)
}

func (l *FileLoader) checkBudget(path string, width, height int) error {
	if width <= 0 || height <= 0 {
		return &LoadError{Op: "bounds", Path: path,
			Err: fmt.Errorf("%w: empty image %dx%d", ErrDecodeFile, width, height)}
	}
	if int64(width)*int64(height) > int64(l.maxPixels) {
		debug.FreeOSMemory()
		l.logger.Warn("static file over pixel budget", "path", path,
			"width", width, "height", height, "max_pixels", l.maxPixels)
		return &LoadError{Op: "bounds", Path: path,
			Err: fmt.Errorf("%w: %dx%d > %d pixels", ErrOutOfMemory, width, height, l.maxPixels)}
	}
	return nil
}

// fromImage applies subsampling and density scaling, then packs RGB565.
func (l *FileLoader) fromImage(ctx context.Context, path string, img image.Image) (*Frame, error) {
	b := img.Bounds()
	orig := geometry.Size{Width: b.Dx(), Height: b.Dy()}
	s := SampleSize(orig.Width, orig.Height, l.target.Width, l.target.Height)

	sampled := orig
	if s > 1 {
		sampled = geometry.Size{Width: max(1, orig.Width/s), Height: max(1, orig.Height/s)}
		img = imaging.Resize(img, sampled.Width, sampled.Height, imaging.NearestNeighbor)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	final := ScaledSize(orig, sampled, l.target)
	if final != sampled {
		img = imaging.Resize(img, final.Width, final.Height, imaging.Linear)
	}

	data, w, h := EncodeRGB565(img)
	return &Frame{
		Kind:   KindStaticFile,
		Format: FormatRGB565,
		Data:   data,
		Width:  w,
		Height: h,
		Path:   path,
	}, nil
}

// loadPDF extracts the embedded images of a PDF and keeps the largest.
func (l *FileLoader) loadPDF(ctx context.Context, path string) (*Frame, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Op: "open", Path: path, Err: fmt.Errorf("%w: %w", ErrDecodeFile, err)}
	}

	tempDir, err := os.MkdirTemp("", "goscan-pdf-*")
	if err != nil {
		return nil, &LoadError{Op: "extract", Path: path, Err: err}
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	if err := api.ExtractImagesFile(path, tempDir, nil, nil); err != nil {
		return nil, &LoadError{Op: "extract", Path: path, Err: fmt.Errorf("%w: %w", ErrDecodeFile, err)}
	}

	var best image.Image
	bestArea := 0
	walkErr := filepath.WalkDir(tempDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := l.decodeExtracted(p)
		if err != nil {
			l.logger.Debug("skipping extracted pdf image", "path", p, "error", err)
			return nil
		}
		if a := img.Bounds().Dx() * img.Bounds().Dy(); a > bestArea {
			best, bestArea = img, a
		}
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return nil, walkErr
		}
		return nil, &LoadError{Op: "extract", Path: path, Err: fmt.Errorf("%w: %w", ErrDecodeFile, walkErr)}
	}
	if best == nil {
		return nil, &LoadError{Op: "extract", Path: path, Err: fmt.Errorf("%w: no images in pdf", ErrDecodeFile)}
	}
	return l.fromImage(ctx, path, best)
}

func (l *FileLoader) decodeExtracted(p string) (image.Image, error) {
	fh, err := os.Open(p) //nolint:gosec // G304: file inside our temp dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = fh.Close() }()

	cfg, _, err := image.DecodeConfig(fh)
	if err != nil {
		return nil, err
	}
	if err := l.checkBudget(p, cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(fh)
	return img, err
}
