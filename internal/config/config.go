package config

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"strings"

	"github.com/MeKo-Tech/goscan/internal/barcode"
	"github.com/MeKo-Tech/goscan/internal/camera"
	"github.com/MeKo-Tech/goscan/internal/frame"
	"github.com/MeKo-Tech/goscan/internal/geometry"
)

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validOutputFormats = []string{"text", "json", "csv"}
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Viewport: ViewportConfig{Width: 1080, Height: 1920},
		File:     FileConfig{MaxPixels: frame.DefaultMaxPixels},
		Camera: CameraConfig{
			Rotation: 90,
			Facing:   camera.FacingBack.String(),
		},
		Output: OutputConfig{Format: "text"},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      30,
			ShutdownTimeout: 10,

			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			MaxRequestsPerDay: 5000,
			MaxDataPerDay:     100 * 1024 * 1024,
		},
		Batch: BatchConfig{
			Workers: 4,
			Include: []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.bmp", "*.tif", "*.tiff", "*.webp", "*.pdf"},
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.Output.Format != "" && !slices.Contains(validOutputFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validOutputFormats, ", "))
	}

	if err := c.validateDecoder(); err != nil {
		return err
	}
	if err := c.validateCamera(); err != nil {
		return err
	}
	if err := c.validateFinder(); err != nil {
		return err
	}

	if c.Scheduler.MaxWorkers < 0 {
		return fmt.Errorf("invalid scheduler max workers: %d (must not be negative)", c.Scheduler.MaxWorkers)
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return fmt.Errorf("invalid viewport: %dx%d (must be positive)", c.Viewport.Width, c.Viewport.Height)
	}
	if c.File.MaxPixels < 0 {
		return fmt.Errorf("invalid file max pixels: %d (must not be negative)", c.File.MaxPixels)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must not be negative)", c.Server.ShutdownTimeout)
	}
	if c.Server.RequestsPerMinute < 0 || c.Server.RequestsPerHour < 0 ||
		c.Server.MaxRequestsPerDay < 0 || c.Server.MaxDataPerDay < 0 {
		return errors.New("invalid rate limit: limits must not be negative")
	}
	return nil
}

func (c *Config) validateDecoder() error {
	if c.Decoder.Mode != "" {
		if _, err := barcode.FormatsForMode(c.Decoder.Mode); err != nil {
			return fmt.Errorf("invalid decoder mode: %s (must be one of: %s)", c.Decoder.Mode, strings.Join(barcode.Modes(), ", "))
		}
	}
	for _, name := range c.Decoder.Formats {
		if _, err := barcode.ParseFormat(name); err != nil {
			return fmt.Errorf("invalid decoder format: %w", err)
		}
	}
	if c.Decoder.CharacterSet != "" {
		if err := barcode.ValidateCharset(c.Decoder.CharacterSet); err != nil {
			return fmt.Errorf("invalid decoder character set: %w", err)
		}
	}
	return nil
}

func (c *Config) validateCamera() error {
	if c.Camera.Width < 0 || c.Camera.Height < 0 || (c.Camera.Width == 0) != (c.Camera.Height == 0) {
		return fmt.Errorf("invalid camera size: %dx%d (set both or neither)", c.Camera.Width, c.Camera.Height)
	}
	if _, err := geometry.NormalizeRotation(c.Camera.Rotation); err != nil {
		return fmt.Errorf("invalid camera rotation: %w", err)
	}
	if _, err := geometry.NormalizeRotation(c.Camera.DisplayRotation); err != nil {
		return fmt.Errorf("invalid camera display rotation: %w", err)
	}
	if _, err := camera.ParseFacing(c.Camera.Facing); err != nil {
		return fmt.Errorf("invalid camera facing: %w", err)
	}
	if c.Camera.FrameInterval < 0 {
		return fmt.Errorf("invalid camera frame interval: %s (must not be negative)", c.Camera.FrameInterval)
	}
	return nil
}

func (c *Config) validateFinder() error {
	f := c.Finder
	if f == (FinderConfig{}) {
		return nil
	}
	if f.Left < 0 || f.Top < 0 || f.Right <= f.Left || f.Bottom <= f.Top {
		return fmt.Errorf("invalid finder: left=%d top=%d right=%d bottom=%d", f.Left, f.Top, f.Right, f.Bottom)
	}
	return nil
}

// DecoderOptions converts the decoder settings to barcode.Options.
func (c *Config) DecoderOptions() (barcode.Options, error) {
	formats, err := barcode.ResolveFormats(c.Decoder.Mode, c.Decoder.Formats)
	if err != nil {
		return barcode.Options{}, err
	}
	return barcode.Options{
		Formats:      formats,
		TryHarder:    c.Decoder.TryHarder,
		CharacterSet: c.Decoder.CharacterSet,
	}, nil
}

// ViewportSize returns the viewport as a geometry.Size.
func (c *Config) ViewportSize() geometry.Size {
	return geometry.Size{Width: c.Viewport.Width, Height: c.Viewport.Height}
}

// FinderRect returns the finder rectangle; empty when unset.
func (c *Config) FinderRect() image.Rectangle {
	return image.Rect(c.Finder.Left, c.Finder.Top, c.Finder.Right, c.Finder.Bottom)
}

// NewFileLoader builds the static file loader for this configuration.
func (c *Config) NewFileLoader(logger *slog.Logger) *frame.FileLoader {
	return frame.NewFileLoader(c.ViewportSize(), c.File.MaxPixels, logger)
}

// ReplayOptions converts the camera settings to camera.ReplayOptions.
func (c *Config) ReplayOptions(logger *slog.Logger) (camera.ReplayOptions, error) {
	facing, err := camera.ParseFacing(c.Camera.Facing)
	if err != nil {
		return camera.ReplayOptions{}, err
	}
	opts := camera.ReplayOptions{
		Facing:      facing,
		Orientation: c.Camera.Rotation,
		Interval:    c.Camera.FrameInterval,
		Loop:        c.Camera.Loop,
		Logger:      logger,
	}
	if c.Camera.Width > 0 && c.Camera.Height > 0 {
		opts.Sizes = []geometry.Size{{Width: c.Camera.Width, Height: c.Camera.Height}}
	}
	return opts, nil
}
