package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goscan_scheduler_tasks_total",
			Help: "Decode tasks by frame kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: success, miss, failure, cancelled
	)

	decodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goscan_scheduler_decode_duration_seconds",
			Help:    "Time spent in a decode body, including frame preparation",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)

	rearmsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "goscan_scheduler_rearms_total",
			Help: "Live preview re-arm requests issued after a miss",
		},
	)

	droppedFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "goscan_scheduler_dropped_frames_total",
			Help: "Preview frames dropped because a decode was in flight",
		},
	)

	decoderPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "goscan_scheduler_decoder_panics_total",
			Help: "Panics recovered from decode bodies",
		},
	)

	workersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "goscan_scheduler_workers_active",
			Help: "Decode bodies currently holding a pool slot",
		},
	)
)

// RecordDroppedFrame counts a preview frame discarded while busy.
func RecordDroppedFrame() { droppedFramesTotal.Inc() }
