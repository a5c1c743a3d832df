package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	if timer == nil {
		t.Fatal("NewTimer() returned nil")
	}
	if timer.start.IsZero() {
		t.Error("NewTimer() start time is zero")
	}
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	sleep := 50 * time.Millisecond
	time.Sleep(sleep)

	if d := timer.Duration(); d < sleep {
		t.Errorf("Timer.Duration() = %v, want >= %v", d, sleep)
	}
}

func TestTimerObserveDurationVec(t *testing.T) {
	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_tier_duration_seconds",
		Help:    "Test histogram",
		Buckets: prometheus.DefBuckets,
	}, []string{"tier"})

	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)
	timer.ObserveDurationVec(hist, "backend")

	// Observing must not panic and the metric must be collectable.
	ch := make(chan prometheus.Metric, 1)
	hist.Collect(ch)
	select {
	case <-ch:
	default:
		t.Error("histogram collected no metrics after observation")
	}
}
