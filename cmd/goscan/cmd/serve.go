package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/goscan/internal/config"
	"github.com/MeKo-Tech/goscan/internal/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for barcode decoding",
	Long: `Start an HTTP server that decodes uploaded files and hosts live scan
sessions for websocket cameras.

The server provides the following endpoints:
  POST /api/decode   - Decode one uploaded image or PDF
  POST /api/batch    - Decode several uploaded files
  GET  /api/sessions - List connected websocket cameras
  GET  /ws/camera    - Websocket camera: the client streams NV21 frames on request
  GET  /health       - Health check endpoint
  GET  /metrics      - Prometheus metrics

Examples:
  goscan serve
  goscan serve --port 8080
  goscan serve --host 0.0.0.0 --port 3000 --rate-limit-enabled`,
	SilenceUsage: true,
	RunE:         runServeCommand,
}

// flagOverride returns the named flag's value if it was given on the
// command line, fallback otherwise.
func flagOverride[T any](cmd *cobra.Command, name string, fallback T, get func(string) (T, error)) T {
	if !cmd.Flags().Changed(name) {
		return fallback
	}
	v, err := get(name)
	if err != nil {
		return fallback
	}
	return v
}

// serverConfig resolves the server settings, flags over configuration.
func serverConfig(cmd *cobra.Command, cfg *config.Config) (server.Config, error) {
	flags := cmd.Flags()
	sc := server.Config{
		Host:            flagOverride(cmd, "host", cfg.Server.Host, flags.GetString),
		Port:            flagOverride(cmd, "port", cfg.Server.Port, flags.GetInt),
		CORSOrigin:      flagOverride(cmd, "cors-origin", cfg.Server.CORSOrigin, flags.GetString),
		MaxUploadMB:     int64(flagOverride(cmd, "max-upload-size", cfg.Server.MaxUploadMB, flags.GetInt)),
		TimeoutSec:      flagOverride(cmd, "timeout", cfg.Server.TimeoutSec, flags.GetInt),
		Viewport:        cfg.ViewportSize(),
		Finder:          cfg.FinderRect(),
		DisplayRotation: cfg.Camera.DisplayRotation,
		MaxPixels:       cfg.File.MaxPixels,
		PoolSize:        cfg.Scheduler.MaxWorkers,
		BatchWorkers:    flagOverride(cmd, "batch-workers", cfg.Batch.Workers, flags.GetInt),
		RateLimit: server.RateLimitConfig{
			Enabled:           flagOverride(cmd, "rate-limit-enabled", cfg.Server.RateLimitEnabled, flags.GetBool),
			RequestsPerMinute: flagOverride(cmd, "requests-per-minute", cfg.Server.RequestsPerMinute, flags.GetInt),
			RequestsPerHour:   flagOverride(cmd, "requests-per-hour", cfg.Server.RequestsPerHour, flags.GetInt),
			MaxRequestsPerDay: flagOverride(cmd, "max-requests-per-day", cfg.Server.MaxRequestsPerDay, flags.GetInt),
			MaxDataPerDay:     flagOverride(cmd, "max-data-per-day", cfg.Server.MaxDataPerDay, flags.GetInt64),
		},
		Logger: slog.Default(),
	}
	sc.BatchLimit, _ = flags.GetInt("batch-limit")

	if sc.Port < 1 || sc.Port > 65535 {
		return sc, fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", sc.Port)
	}
	decoder, err := cfg.DecoderOptions()
	if err != nil {
		return sc, err
	}
	sc.Decoder = decoder
	return sc, nil
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	sc, err := serverConfig(cmd, cfg)
	if err != nil {
		return err
	}
	shutdownTimeout := flagOverride(cmd, "shutdown-timeout", cfg.Server.ShutdownTimeout, cmd.Flags().GetInt)

	scanServer, err := server.NewServer(sc)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	defer func() { _ = scanServer.Close() }()

	mux := http.NewServeMux()
	scanServer.SetupRoutes(mux)

	// No write timeout: websocket camera sessions are long-lived.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", sc.Host, sc.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting scan server", "host", sc.Host, "port", sc.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	}

	slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	// Shutdown does not wait for hijacked websocket connections.
	if err := scanServer.Close(); err != nil {
		slog.Error("Closing camera sessions failed", "error", err)
	}
	slog.Info("Graceful shutdown completed")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 50, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "decode timeout per request in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Int("batch-limit", 20, "maximum files per batch request")
	serveCmd.Flags().Int("batch-workers", 4, "parallel sessions per batch request")
	// Rate limiting flags
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting")
	serveCmd.Flags().Int("requests-per-minute", 60, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 1000, "maximum requests per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", 5000, "maximum requests per day per client")
	serveCmd.Flags().Int64("max-data-per-day", 100*1024*1024, "maximum data processed per day per client (bytes)")
}
