package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/goscan/internal/benchmark"
)

// benchCmd measures decode cost on a set of images.
var benchCmd = &cobra.Command{
	Use:   "bench [files or directories...]",
	Short: "Measure load and decode time per image",
	Long: `Load and decode every image several times and report the average load
time, decode time and the extra cost of try-harder decoding, followed by
a CSV section for further processing.

Examples:
  goscan bench testdata/
  goscan bench --iterations 20 --output bench.txt shot.png`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBenchCommand,
}

func runBenchCommand(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	iterations, _ := cmd.Flags().GetInt("iterations")
	outputFile, _ := cmd.Flags().GetString("output")

	files, err := expandImages(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no supported image files found")
	}

	opts, err := cfg.DecoderOptions()
	if err != nil {
		return err
	}
	logger := slog.Default()
	bench := benchmark.NewDecodeBenchmark(opts, cfg.NewFileLoader(logger), logger)
	for _, f := range files {
		bench.AddImage(f)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	logger.Info("benchmark started", "images", len(files), "iterations", iterations)
	if _, err := bench.Run(ctx, iterations); err != nil {
		return fmt.Errorf("benchmark failed: %w", err)
	}

	if outputFile == "" {
		bench.WriteResults(cmd.OutOrStdout())
		return nil
	}
	file, err := os.Create(outputFile) //nolint:gosec // G304: user supplied output path
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	bench.WriteResults(file)
	if err := file.Close(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Results saved to: %s\n", outputFile)
	return nil
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().IntP("iterations", "n", 5, "number of iterations per image")
	benchCmd.Flags().StringP("output", "o", "", "write the report to a file instead of stdout")
}
