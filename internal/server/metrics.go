package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goscan_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goscan_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Decode request metrics
	decodeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goscan_decode_requests_total",
			Help: "Total number of decode requests",
		},
		[]string{"type", "status"}, // type: upload, batch, camera; status: found, not_found, error
	)

	decodeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goscan_decode_request_duration_seconds",
			Help:    "Decode request duration in seconds, upload to outcome",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"type"},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goscan_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"}, // type: minute, hour, requests, data
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "goscan_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024},
		},
	)

	// WebSocket camera metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "goscan_websocket_active_connections",
			Help: "Number of active websocket camera connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goscan_websocket_messages_total",
			Help: "Total number of websocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)

	cameraFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goscan_camera_frames_total",
			Help: "Preview frames received from websocket cameras",
		},
		[]string{"status"}, // status: delivered, unrequested
	)
)
