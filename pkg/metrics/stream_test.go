package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStreamMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStreamMetrics(reg)

	m.StreamOpened()
	m.StreamOpened()
	m.StreamClosed()
	m.EventsEmitted(3)
	m.PollFailed()
	m.HeartbeatSent()

	if got := testutil.ToFloat64(m.openStreams); got != 1 {
		t.Fatalf("open streams gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.eventsSent); got != 3 {
		t.Fatalf("events counter = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.pollFailures); got != 1 {
		t.Fatalf("poll failures = %v, want 1", got)
	}
}

func TestStreamMetricsNilSafe(t *testing.T) {
	var m *StreamMetrics
	m.StreamOpened()
	m.EventsEmitted(1)

	unregistered := NewStreamMetrics(nil)
	unregistered.StreamOpened()
	unregistered.HeartbeatSent()
}
