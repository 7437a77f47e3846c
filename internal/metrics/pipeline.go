// Package metrics provides Prometheus metrics for the capture pipeline and
// the capture session supervisor.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "v4l2cast"

var (
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "frames_total",
		Help:      "Coded frames taken from the encoder",
	}, []string{"camera"})

	bytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "bytes_total",
		Help:      "Coded bytes taken from the encoder",
	}, []string{"camera"})

	frameSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "take_frame_seconds",
		Help:      "Time to capture and encode one frame",
		Buckets:   []float64{.005, .01, .02, .033, .05, .066, .1, .2, .5, 1},
	}, []string{"camera"})

	unitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "nal_units_total",
		Help:      "NAL units handed to the sink, by unit type",
	}, []string{"type"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "errors_total",
		Help:      "Pipeline errors by kind",
	}, []string{"kind"})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "supervisor",
		Name:      "sessions_total",
		Help:      "Capture sessions by outcome",
	}, []string{"outcome"})

	sessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "supervisor",
		Name:      "session_active",
		Help:      "1 while a capture session is streaming",
	})

	injectedParameterSets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sink",
		Name:      "injected_parameter_sets_total",
		Help:      "SPS/PPS pairs re-sent ahead of an IDR",
	})
)

// ObserveFrame records one coded frame.
func ObserveFrame(camera string, size int, took time.Duration) {
	framesTotal.WithLabelValues(camera).Inc()
	bytesTotal.WithLabelValues(camera).Add(float64(size))
	frameSeconds.WithLabelValues(camera).Observe(took.Seconds())
}

// CountUnit records one NAL unit of the given type name.
func CountUnit(unitType string) {
	unitsTotal.WithLabelValues(unitType).Inc()
}

// CountError records one pipeline error.
func CountError(kind string) {
	errorsTotal.WithLabelValues(kind).Inc()
}

// SessionStarted marks a session as streaming.
func SessionStarted() {
	sessionsTotal.WithLabelValues("started").Inc()
	sessionActive.Set(1)
}

// SessionEnded marks the end of a session; outcome is "stopped" or "failed".
func SessionEnded(outcome string) {
	sessionsTotal.WithLabelValues(outcome).Inc()
	sessionActive.Set(0)
}

// CountInjectedParameterSets records one SPS/PPS re-injection.
func CountInjectedParameterSets() {
	injectedParameterSets.Inc()
}

// DeleteCameraMetrics removes the per-camera series.
func DeleteCameraMetrics(camera string) {
	framesTotal.DeleteLabelValues(camera)
	bytesTotal.DeleteLabelValues(camera)
	frameSeconds.DeleteLabelValues(camera)
}
