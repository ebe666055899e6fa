package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/goscan/internal/batch"
	"github.com/MeKo-Tech/goscan/internal/config"
)

// batchCmd represents the batch command for parallel decoding.
var batchCmd = &cobra.Command{
	Use:   "batch [files or directories...]",
	Short: "Decode barcodes from many files in parallel",
	Long: `Decode barcodes from many image and PDF files using parallel workers.
Each worker runs its own scan session; all workers share one decode pool.

Directories are scanned for files matching the include patterns and not
matching the exclude patterns.

Examples:
  goscan batch *.png
  goscan batch scans/ --recursive --workers 8
  goscan batch scans/ --format csv --output results.csv
  goscan batch scans/ --include "*.jpg" --exclude "thumb_*" --stats`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBatchCommand,
}

// configToBatchConfig maps the configuration to batch.Config, with command
// line flags taking precedence.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) (*batch.Config, error) {
	opts, err := cfg.DecoderOptions()
	if err != nil {
		return nil, err
	}
	batchConfig := &batch.Config{
		Decoder:   opts,
		Viewport:  cfg.ViewportSize(),
		MaxPixels: cfg.File.MaxPixels,
		PoolSize:  cfg.Scheduler.MaxWorkers,
		Logger:    slog.Default(),
	}

	batchConfig.Workers = cfg.Batch.Workers
	if cmd.Flags().Changed("workers") {
		batchConfig.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if batchConfig.Workers <= 0 {
		return nil, fmt.Errorf("invalid worker count: %d (must be positive)", batchConfig.Workers)
	}

	batchConfig.Recursive = cfg.Batch.Recursive
	if cmd.Flags().Changed("recursive") {
		batchConfig.Recursive, _ = cmd.Flags().GetBool("recursive")
	}

	batchConfig.IncludePatterns = cfg.Batch.Include
	if cmd.Flags().Changed("include") {
		batchConfig.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
	}

	batchConfig.ExcludePatterns = cfg.Batch.Exclude
	if cmd.Flags().Changed("exclude") {
		batchConfig.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")
	}

	return batchConfig, nil
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	format, outputFile, err := outputSettings(cmd, cfg)
	if err != nil {
		return err
	}
	batchConfig, err := configToBatchConfig(cfg, cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	res, err := batch.ProcessBatch(ctx, args, batchConfig)
	if err != nil {
		if errors.Is(err, batch.ErrNoFiles) {
			return fmt.Errorf("%w in %v", err, args)
		}
		return err
	}

	if err := res.SaveResults(format, outputFile, cmd.OutOrStdout()); err != nil {
		return err
	}
	if outputFile != "" {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Results written to %s\n", outputFile)
	}
	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		res.PrintStats(cmd.ErrOrStderr())
	}
	if res.Found() == 0 {
		return errNoBarcode
	}
	return nil
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringP("format", "f", "text", "output format (text, json, csv)")
	batchCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	batchCmd.Flags().IntP("workers", "w", 4, "number of parallel sessions")
	batchCmd.Flags().BoolP("recursive", "r", false, "descend into subdirectories")
	batchCmd.Flags().StringSlice("include", nil, "file patterns to include (e.g. *.png,*.jpg)")
	batchCmd.Flags().StringSlice("exclude", nil, "file patterns to exclude")
	batchCmd.Flags().Bool("stats", false, "print processing statistics to stderr")
}
