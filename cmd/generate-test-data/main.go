package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/goscan/internal/testutil"
)

// fixture records what decoding InputFile is expected to yield.
type fixture struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputFile   string `json:"input_file"`
	Found       bool   `json:"found"`
	Format      string `json:"format,omitempty"`
	Text        string `json:"text,omitempty"`
}

const canvasSize = 480

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		outDir  = flag.String("out", "testdata", "Output directory, relative to the project root")
		verbose = flag.Bool("v", false, "Verbose output")
		help    = flag.Bool("h", false, "Show help")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate barcode images and expected results for goscan testing.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	root, err := testutil.GetProjectRoot()
	if err != nil {
		slog.Error("Failed to find project root", "error", err)
		os.Exit(1)
	}
	if err := os.Chdir(root); err != nil {
		slog.Error("Failed to change to project root", "error", err)
		os.Exit(1)
	}
	if *verbose {
		slog.Info("Project root", "path", root, "out", *outDir)
	}

	fixtures, err := generateImages(filepath.Join(*outDir, "images"))
	if err != nil {
		slog.Error("Failed to generate test images", "error", err)
		os.Exit(1)
	}
	slog.Info("Generated test images", "count", len(fixtures))

	if err := saveFixtures(fixtures, filepath.Join(*outDir, "fixtures")); err != nil {
		slog.Error("Failed to save fixtures", "error", err)
		os.Exit(1)
	}
	slog.Info("Test data generation completed successfully")
}

// generateImages writes every image into dir and returns its expectations.
func generateImages(dir string) ([]fixture, error) {
	var fixtures []fixture
	write := func(sub, name string, img image.Image, fx fixture) error {
		d := filepath.Join(dir, sub)
		if err := testutil.EnsureDir(d); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
		if err := testutil.WritePNG(img, filepath.Join(d, name)); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		fx.InputFile = filepath.ToSlash(filepath.Join("images", sub, name))
		fixtures = append(fixtures, fx)
		return nil
	}

	for i, text := range []string{"Hello", "https://example.com/goscan", "12345", "Grüße"} {
		qr, err := testutil.EncodeQRCode(text, 300)
		if err != nil {
			return nil, err
		}
		offset := (canvasSize - 300) / 2
		img := testutil.Place(qr, canvasSize, canvasSize, image.Pt(offset, offset))
		fx := fixture{
			Name:        fmt.Sprintf("qr_%d", i+1),
			Description: "QR code on a white canvas",
			Found:       true, Format: "QR_CODE", Text: text,
		}
		if err := write("qr", fx.Name+".png", img, fx); err != nil {
			return nil, err
		}
	}

	for i, text := range []string{"GOSCAN-128", "0123456789"} {
		bar, err := testutil.EncodeCode128(text, 360, 120)
		if err != nil {
			return nil, err
		}
		img := testutil.Place(bar, canvasSize, canvasSize/2, image.Pt(60, 60))
		fx := fixture{
			Name:        fmt.Sprintf("code128_%d", i+1),
			Description: "Code 128 symbol",
			Found:       true, Format: "CODE_128", Text: text,
		}
		if err := write("code128", fx.Name+".png", img, fx); err != nil {
			return nil, err
		}
	}

	qr, err := testutil.EncodeQRCode("Rotated", 300)
	if err != nil {
		return nil, err
	}
	upright := testutil.Place(qr, canvasSize, canvasSize, image.Pt(90, 90))
	for _, angle := range []int{90, 180, 270} {
		var rotated image.Image
		switch angle {
		case 90:
			rotated = imaging.Rotate90(upright)
		case 180:
			rotated = imaging.Rotate180(upright)
		default:
			rotated = imaging.Rotate270(upright)
		}
		fx := fixture{
			Name:        fmt.Sprintf("rotated_%d", angle),
			Description: "QR code rotated by a right angle",
			Found:       true, Format: "QR_CODE", Text: "Rotated",
		}
		if err := write("rotated", fx.Name+".png", rotated, fx); err != nil {
			return nil, err
		}
	}

	blank := fixture{Name: "blank", Description: "Uniform image without a symbol"}
	if err := write("blank", "blank.png", testutil.BlankImage(canvasSize, canvasSize), blank); err != nil {
		return nil, err
	}
	return fixtures, nil
}

func saveFixtures(fixtures []fixture, dir string) error {
	if err := testutil.EnsureDir(dir); err != nil {
		return fmt.Errorf("failed to create fixtures directory: %w", err)
	}
	for _, fx := range fixtures {
		data, err := json.MarshalIndent(fx, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, fx.Name+".json"), data, 0o600); err != nil {
			return fmt.Errorf("failed to save fixture '%s': %w", fx.Name, err)
		}
	}
	return nil
}
