// Package batch decodes barcodes from many image files concurrently, one
// scan session per worker.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoFiles is returned when discovery finds nothing to decode.
var ErrNoFiles = errors.New("no image files found")

// ProcessBatch discovers image files under paths and decodes each of them.
// A file without a barcode is a result, not an error.
func ProcessBatch(ctx context.Context, paths []string, config *Config) (*Result, error) {
	files, err := discoverImageFiles(paths, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	cfg := *config
	cfg.Logger = logger(config)

	start := time.Now()
	items, err := processFiles(ctx, &cfg, files)
	if err != nil {
		return nil, fmt.Errorf("batch processing failed: %w", err)
	}

	cfg.Logger.Info("batch finished", "files", len(files), "duration", time.Since(start))
	return &Result{
		Items:       items,
		Duration:    time.Since(start),
		WorkerCount: min(max(cfg.Workers, 1), len(files)),
	}, nil
}
