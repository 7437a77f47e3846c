package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveFrame(t *testing.T) {
	camera := "/dev/video-test"
	DeleteCameraMetrics(camera)

	ObserveFrame(camera, 100, 10*time.Millisecond)
	ObserveFrame(camera, 50, 20*time.Millisecond)

	if got := testutil.ToFloat64(framesTotal.WithLabelValues(camera)); got != 2 {
		t.Errorf("frames_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(bytesTotal.WithLabelValues(camera)); got != 150 {
		t.Errorf("bytes_total = %v, want 150", got)
	}

	DeleteCameraMetrics(camera)
	if got := testutil.ToFloat64(framesTotal.WithLabelValues(camera)); got != 0 {
		t.Errorf("frames_total after delete = %v, want 0", got)
	}
}

func TestSessionGauge(t *testing.T) {
	SessionStarted()
	if got := testutil.ToFloat64(sessionActive); got != 1 {
		t.Errorf("session_active = %v, want 1", got)
	}
	before := testutil.ToFloat64(sessionsTotal.WithLabelValues("failed"))
	SessionEnded("failed")
	if got := testutil.ToFloat64(sessionActive); got != 0 {
		t.Errorf("session_active = %v, want 0", got)
	}
	if got := testutil.ToFloat64(sessionsTotal.WithLabelValues("failed")); got != before+1 {
		t.Errorf("sessions_total{failed} = %v, want %v", got, before+1)
	}
}

func TestCountUnitAndError(t *testing.T) {
	before := testutil.ToFloat64(unitsTotal.WithLabelValues("idr"))
	CountUnit("idr")
	if got := testutil.ToFloat64(unitsTotal.WithLabelValues("idr")); got != before+1 {
		t.Errorf("nal_units_total{idr} = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(errorsTotal.WithLabelValues("IO"))
	CountError("IO")
	if got := testutil.ToFloat64(errorsTotal.WithLabelValues("IO")); got != before+1 {
		t.Errorf("errors_total{IO} = %v, want %v", got, before+1)
	}
}
