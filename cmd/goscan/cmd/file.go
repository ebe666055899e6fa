package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/goscan/internal/batch"
	"github.com/MeKo-Tech/goscan/internal/session"
)

// fileCmd decodes files one after another through a single session.
var fileCmd = &cobra.Command{
	Use:   "file [files...]",
	Short: "Decode barcodes from image or PDF files",
	Long: `Decode the barcode in each of the given files, one at a time.

Images are scaled towards the configured viewport before decoding. PDF files
are scanned through their embedded images.

Supported formats: PNG, JPEG, GIF, BMP, TIFF, WebP, PDF

The command exits non-zero when no file contained a barcode.

Examples:
  goscan file ticket.png
  goscan file a.png b.jpg --format json
  goscan file label.pdf --mode ONE_D_MODE --output result.csv --format csv`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runFileCommand,
}

func runFileCommand(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	format, outputFile, err := outputSettings(cmd, cfg)
	if err != nil {
		return err
	}

	logger := slog.Default()
	reader, err := newReader(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	results := make(outcomes, 1)
	sess, err := newSession(ctx, cfg, reader, results, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer func() { _ = sess.Close(context.Background()) }()

	start := time.Now()
	items := make([]batch.ItemResult, 0, len(args))
	for _, path := range args {
		item, err := decodePath(ctx, sess, results, path)
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	res := &batch.Result{Items: items, Duration: time.Since(start), WorkerCount: 1}
	if err := res.SaveResults(format, outputFile, cmd.OutOrStdout()); err != nil {
		return err
	}
	if outputFile != "" {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Results written to %s\n", outputFile)
	}
	if res.Found() == 0 {
		return errNoBarcode
	}
	return nil
}

// decodePath decodes one file. Unreadable paths and misses are results; only
// cancellation is an error.
func decodePath(ctx context.Context, sess *session.Session, results outcomes, path string) (batch.ItemResult, error) {
	start := time.Now()
	item := batch.ItemResult{File: path}

	if _, err := os.Stat(path); err != nil {
		item.Error = err.Error()
		return item, nil
	}
	if err := sess.DecodeFile(ctx, path); err != nil {
		return item, err
	}

	select {
	case res := <-results:
		if res == nil {
			item.Error = errNoBarcode.Error()
			break
		}
		item.Found = true
		item.Text = res.Text
		item.Format = res.Format.String()
		item.Points = res.Points
	case <-ctx.Done():
		return item, ctx.Err()
	}
	item.Duration = time.Since(start)
	return item, nil
}

func init() {
	rootCmd.AddCommand(fileCmd)
	fileCmd.Flags().StringP("format", "f", "text", "output format (text, json, csv)")
	fileCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
}
