package batch

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/MeKo-Tech/goscan/internal/barcode"
	"github.com/MeKo-Tech/goscan/internal/geometry"
)

// Config holds all configuration for batch decoding.
type Config struct {
	Decoder barcode.Options
	// Viewport is the size static files are scaled towards.
	Viewport  geometry.Size
	MaxPixels int

	// Workers is the number of concurrent sessions, each with its own decoder.
	Workers int
	// PoolSize bounds concurrent decode bodies across all workers; 0 means one per CPU.
	PoolSize int

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	Logger *slog.Logger
}

// ItemResult is the outcome for one file.
type ItemResult struct {
	File     string          `json:"file"`
	Found    bool            `json:"found"`
	Text     string          `json:"text,omitempty"`
	Format   string          `json:"format,omitempty"`
	Points   []barcode.Point `json:"points,omitempty"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration_ns"`
}

// Result holds the result of batch processing.
type Result struct {
	Items       []ItemResult
	Duration    time.Duration
	WorkerCount int
}

// Found returns the number of files in which a symbol was decoded.
func (r *Result) Found() int {
	n := 0
	for _, it := range r.Items {
		if it.Found {
			n++
		}
	}
	return n
}

// FormatResults formats the batch results in the specified format.
func (r *Result) FormatResults(format string) (string, error) {
	return formatBatchResults(r.Items, format)
}

// SaveResults writes the formatted results to outputFile, or to stdout when
// outputFile is empty.
func (r *Result) SaveResults(format, outputFile string, stdout io.Writer) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		return nil
	}
	_, err = fmt.Fprint(stdout, output)
	return err
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(w io.Writer) {
	total := len(r.Items)
	found := r.Found()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total files: %d\n", total)
	_, _ = fmt.Fprintf(w, "  Decoded: %d\n", found)
	_, _ = fmt.Fprintf(w, "  Not decoded: %d\n", total-found)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", r.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", r.Duration.Round(time.Millisecond))
	if total > 0 && r.Duration > 0 {
		_, _ = fmt.Fprintf(w, "  Throughput: %.1f files/sec\n", float64(total)/r.Duration.Seconds())
	}
}
