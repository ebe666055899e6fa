package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/goscan/internal/barcode"
	"github.com/MeKo-Tech/goscan/internal/camera"
	"github.com/MeKo-Tech/goscan/internal/config"
	"github.com/MeKo-Tech/goscan/internal/frame"
	"github.com/MeKo-Tech/goscan/internal/scheduler"
	"github.com/MeKo-Tech/goscan/internal/session"
)

const (
	outputFormatJSON = "json"
	outputFormatCSV  = "csv"
	outputFormatText = "text"
)

// errNoBarcode makes a run that decoded nothing exit non-zero.
var errNoBarcode = errors.New("no barcode found")

// outcomes receives one session outcome per decode; nil is a miss.
type outcomes chan *barcode.Result

func (o outcomes) ScanSuccess(string) {}

func (o outcomes) ScanResult(res *barcode.Result) { o <- res }

func (o outcomes) DecodeFailure() { o <- nil }

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// outputSettings resolves --format and --output against the configuration.
func outputSettings(cmd *cobra.Command, cfg *config.Config) (string, string, error) {
	format := cfg.Output.Format
	if cmd.Flags().Changed("format") {
		format, _ = cmd.Flags().GetString("format")
	}
	if format == "" {
		format = outputFormatText
	}
	if !slices.Contains([]string{outputFormatText, outputFormatJSON, outputFormatCSV}, format) {
		return "", "", fmt.Errorf("invalid output format: %s (must be text, json or csv)", format)
	}

	outputFile := cfg.Output.File
	if cmd.Flags().Changed("output") {
		outputFile, _ = cmd.Flags().GetString("output")
	}
	return format, outputFile, nil
}

// newReader builds the barcode reader the configuration asks for.
func newReader(cfg *config.Config, logger *slog.Logger) (*barcode.Reader, error) {
	opts, err := cfg.DecoderOptions()
	if err != nil {
		return nil, err
	}
	return barcode.NewReader(opts, logger)
}

// newSession builds a session over reader; a nil driver gives a file-only
// session.
func newSession(
	ctx context.Context,
	cfg *config.Config,
	reader barcode.Decoder,
	listener session.Listener,
	driver camera.Driver,
	logger *slog.Logger,
) (*session.Session, error) {
	return session.New(ctx, session.Config{
		Driver:          driver,
		Decoder:         reader,
		Loader:          cfg.NewFileLoader(logger),
		Pool:            scheduler.NewPool(cfg.Scheduler.MaxWorkers),
		Listener:        listener,
		Viewport:        session.StaticViewport{View: cfg.ViewportSize(), FinderRect: cfg.FinderRect()},
		DisplayRotation: cfg.Camera.DisplayRotation,
		Logger:          logger,
	})
}

// expandImages replaces directories in args by the supported image files
// directly inside them, in name order.
func expandImages(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", arg, err)
		}
		for _, e := range entries {
			if !e.IsDir() && frame.IsSupported(e.Name()) {
				files = append(files, filepath.Join(arg, e.Name()))
			}
		}
	}
	return files, nil
}
