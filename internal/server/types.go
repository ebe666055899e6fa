// Package server exposes barcode decoding over HTTP: file uploads, batch
// uploads, and a websocket endpoint whose client acts as the camera of a
// live scan session.
package server

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/goscan/internal/barcode"
	"github.com/MeKo-Tech/goscan/internal/frame"
	"github.com/MeKo-Tech/goscan/internal/geometry"
	"github.com/MeKo-Tech/goscan/internal/scheduler"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	decoder     barcode.Options
	viewport    geometry.Size
	finder      image.Rectangle
	rotation    int
	loader      *frame.FileLoader
	maxPixels   int
	poolSize    int
	pool        *scheduler.Pool
	cameras     *cameraRegistry
	rateLimiter *RateLimiter
	logger      *slog.Logger
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	batchLimit  int
	batchWork   int
}

// RateLimitConfig holds per-client rate limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int

	Decoder barcode.Options
	// Viewport is the size uploads are scaled towards and the default view
	// size of camera sessions.
	Viewport        geometry.Size
	Finder          image.Rectangle
	DisplayRotation int
	MaxPixels       int
	PoolSize        int
	// BatchLimit caps the number of files in one batch upload.
	BatchLimit   int
	BatchWorkers int

	RateLimit RateLimitConfig
	Logger    *slog.Logger
}

const (
	defaultBatchLimit   = 20
	defaultBatchWorkers = 4
)

// Response types for API endpoints.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Time     string `json:"time"`
	Sessions int    `json:"sessions"`
}

// DecodeResult is the outcome for one uploaded file.
type DecodeResult struct {
	File       string          `json:"file,omitempty"`
	Found      bool            `json:"found"`
	Text       string          `json:"text,omitempty"`
	Format     string          `json:"format,omitempty"`
	Points     []barcode.Point `json:"points,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

type DecodeResponse struct {
	Success bool          `json:"success"`
	Result  *DecodeResult `json:"result,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type SessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
	Count    int           `json:"count"`
}

// SessionInfo describes one connected websocket camera.
type SessionInfo struct {
	ID         string `json:"id"`
	RemoteAddr string `json:"remote_addr"`
	Since      string `json:"since"`
	Frames     int64  `json:"frames"`
	Scans      int64  `json:"scans"`
}

// NewServer creates a new decode server instance.
func NewServer(config Config) (*Server, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Viewport.Width <= 0 || config.Viewport.Height <= 0 {
		return nil, fmt.Errorf("invalid viewport %s", config.Viewport)
	}
	if config.MaxUploadMB <= 0 {
		return nil, errors.New("max upload size must be positive")
	}
	if _, err := geometry.NormalizeRotation(config.DisplayRotation); err != nil {
		return nil, fmt.Errorf("display rotation: %w", err)
	}
	// Fail on unusable decoder options here rather than on the first request.
	if _, err := barcode.NewReader(config.Decoder, config.Logger); err != nil {
		return nil, err
	}
	if config.BatchLimit <= 0 {
		config.BatchLimit = defaultBatchLimit
	}
	if config.BatchWorkers <= 0 {
		config.BatchWorkers = defaultBatchWorkers
	}

	s := &Server{
		decoder:     config.Decoder,
		viewport:    config.Viewport,
		finder:      config.Finder,
		rotation:    config.DisplayRotation,
		loader:      frame.NewFileLoader(config.Viewport, config.MaxPixels, config.Logger),
		maxPixels:   config.MaxPixels,
		poolSize:    config.PoolSize,
		pool:        scheduler.NewPool(config.PoolSize),
		cameras:     newCameraRegistry(),
		logger:      config.Logger.With("component", "server"),
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
		batchLimit:  config.BatchLimit,
		batchWork:   config.BatchWorkers,
	}
	if rl := config.RateLimit; rl.Enabled {
		s.rateLimiter = NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.MaxRequestsPerDay, rl.MaxDataPerDay)
	}
	return s, nil
}

// Close disconnects all camera sessions.
func (s *Server) Close() error {
	return s.cameras.closeAll()
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/decode", s.corsMiddleware(s.rateLimitMiddleware(s.decodeHandler)))
	mux.HandleFunc("/api/batch", s.corsMiddleware(s.rateLimitMiddleware(s.batchHandler)))
	mux.HandleFunc("/api/sessions", s.corsMiddleware(s.sessionsHandler))
	mux.HandleFunc("/ws/camera", s.rateLimitMiddleware(s.cameraWebSocketHandler))
}
