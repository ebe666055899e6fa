package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/MeKo-Tech/goscan/internal/barcode"
	"github.com/MeKo-Tech/goscan/internal/frame"
)

// ImageResult compares the plain and the try-harder reader on one image.
type ImageResult struct {
	Path      string
	Size      string
	Found     bool
	Text      string
	Load      Result
	Normal    Result
	TryHarder Result
	// TryHarderCost is the try-harder average over the plain average.
	TryHarderCost float64
}

// String returns a one-line summary of the comparison.
func (r ImageResult) String() string {
	status := "no symbol"
	if r.Found {
		status = fmt.Sprintf("%q", r.Text)
	}
	return fmt.Sprintf("%s (%s): load: %v, decode: %v, try harder: %v (%.2fx), %s",
		filepath.Base(r.Path), r.Size, r.Load.Average(), r.Normal.Average(),
		r.TryHarder.Average(), r.TryHarderCost, status)
}

// DecodeBenchmark times loading and decoding static images.
type DecodeBenchmark struct {
	options barcode.Options
	loader  *frame.FileLoader
	logger  *slog.Logger
	images  []string
	results []ImageResult
}

// NewDecodeBenchmark creates a benchmark decoding with opts. TryHarder in
// opts is ignored; both settings are always measured.
func NewDecodeBenchmark(opts barcode.Options, loader *frame.FileLoader, logger *slog.Logger) *DecodeBenchmark {
	if logger == nil {
		logger = slog.Default()
	}
	return &DecodeBenchmark{options: opts, loader: loader, logger: logger}
}

// AddImage adds an image to the benchmark.
func (b *DecodeBenchmark) AddImage(path string) {
	b.images = append(b.images, path)
}

// Run measures every image for iterations rounds. Images that fail to
// load abort the run.
func (b *DecodeBenchmark) Run(ctx context.Context, iterations int) ([]ImageResult, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", iterations)
	}
	if len(b.images) == 0 {
		return nil, errors.New("no images to benchmark")
	}

	plainOpts := b.options
	plainOpts.TryHarder = false
	plain, err := barcode.NewReader(plainOpts, b.logger)
	if err != nil {
		return nil, err
	}
	harderOpts := b.options
	harderOpts.TryHarder = true
	harder, err := barcode.NewReader(harderOpts, b.logger)
	if err != nil {
		return nil, err
	}

	b.results = make([]ImageResult, 0, len(b.images))
	for _, path := range b.images {
		if err := ctx.Err(); err != nil {
			return b.results, err
		}
		res, err := b.benchmarkImage(ctx, path, iterations, plain, harder)
		if err != nil {
			return b.results, err
		}
		b.logger.Debug("image benchmarked", "path", path, "result", res.String())
		b.results = append(b.results, res)
	}
	return b.results, nil
}

func (b *DecodeBenchmark) benchmarkImage(
	ctx context.Context, path string, iterations int, plain, harder *barcode.Reader,
) (ImageResult, error) {
	f, err := b.loader.Load(ctx, path)
	if err != nil {
		return ImageResult{}, err
	}
	img, err := f.RGB565()
	if err != nil {
		return ImageResult{}, err
	}
	view, err := barcode.NewImageView(img)
	if err != nil {
		return ImageResult{}, err
	}

	result := ImageResult{Path: path, Size: f.Size().String()}
	if res, err := plain.Decode(ctx, view); err == nil {
		result.Found, result.Text = true, res.Text
	}

	suite := NewSuite()
	suite.Add("load", func() error {
		_, err := b.loader.Load(ctx, path)
		return err
	})
	suite.Add("decode", decodeFunc(ctx, plain, view))
	suite.Add("try_harder", decodeFunc(ctx, harder, view))
	runs := suite.RunAll(iterations)
	for _, r := range runs {
		if r.Error != nil {
			return ImageResult{}, fmt.Errorf("%s: %w", path, r.Error)
		}
	}
	result.Load, result.Normal, result.TryHarder = runs[0], runs[1], runs[2]
	if avg := result.Normal.Average(); avg > 0 {
		result.TryHarderCost = float64(result.TryHarder.Average()) / float64(avg)
	}
	return result, nil
}

// decodeFunc decodes view once. A miss is a valid outcome.
func decodeFunc(ctx context.Context, r *barcode.Reader, view barcode.View) func() error {
	return func() error {
		_, err := r.Decode(ctx, view)
		if err != nil && !errors.Is(err, barcode.ErrNotFound) {
			return err
		}
		return nil
	}
}

// Results returns the results of the last Run.
func (b *DecodeBenchmark) Results() []ImageResult {
	return b.results
}

// WriteResults writes a readable report followed by a CSV section.
func (b *DecodeBenchmark) WriteResults(w io.Writer) {
	_, _ = fmt.Fprintln(w, "goscan Decode Benchmark Results")
	_, _ = fmt.Fprintln(w, "===============================")
	for _, r := range b.results {
		_, _ = fmt.Fprintln(w, r.String())
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "CSV Format:")
	_, _ = fmt.Fprintln(w, "Image,Size,Found,Load_ms,Decode_ms,TryHarder_ms,TryHarder_Cost,Memory_KB")
	for _, r := range b.results {
		_, _ = fmt.Fprintf(w, "%s,%s,%t,%.2f,%.2f,%.2f,%.2f,%d\n",
			filepath.Base(r.Path),
			r.Size,
			r.Found,
			float64(r.Load.Average().Nanoseconds())/1e6,
			float64(r.Normal.Average().Nanoseconds())/1e6,
			float64(r.TryHarder.Average().Nanoseconds())/1e6,
			r.TryHarderCost,
			r.TryHarder.AllocatedKB(),
		)
	}
}
