package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StreamMetrics records per-gateway SSE activity.
type StreamMetrics struct {
	openStreams  prometheus.Gauge
	eventsSent   prometheus.Counter
	pollFailures prometheus.Counter
	heartbeats   prometheus.Counter
}

// NewStreamMetrics registers the stream metrics on the provided registerer.
func NewStreamMetrics(reg prometheus.Registerer) *StreamMetrics {
	if reg == nil {
		return &StreamMetrics{}
	}
	openStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sse_open_streams",
		Help: "Number of currently connected SSE clients.",
	})
	eventsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sse_events_emitted_total",
		Help: "Events written to SSE clients.",
	})
	pollFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sse_poll_failures_total",
		Help: "Store polls that failed during streaming.",
	})
	heartbeats := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sse_heartbeats_total",
		Help: "Heartbeat comments written to SSE clients.",
	})
	reg.MustRegister(openStreams, eventsSent, pollFailures, heartbeats)
	return &StreamMetrics{
		openStreams:  openStreams,
		eventsSent:   eventsSent,
		pollFailures: pollFailures,
		heartbeats:   heartbeats,
	}
}

// StreamOpened increments the open stream gauge.
func (m *StreamMetrics) StreamOpened() {
	if m == nil || m.openStreams == nil {
		return
	}
	m.openStreams.Inc()
}

// StreamClosed decrements the open stream gauge.
func (m *StreamMetrics) StreamClosed() {
	if m == nil || m.openStreams == nil {
		return
	}
	m.openStreams.Dec()
}

// EventsEmitted adds to the emitted events counter.
func (m *StreamMetrics) EventsEmitted(n int) {
	if m == nil || m.eventsSent == nil || n <= 0 {
		return
	}
	m.eventsSent.Add(float64(n))
}

// PollFailed increments the poll failure counter.
func (m *StreamMetrics) PollFailed() {
	if m == nil || m.pollFailures == nil {
		return
	}
	m.pollFailures.Inc()
}

// HeartbeatSent increments the heartbeat counter.
func (m *StreamMetrics) HeartbeatSent() {
	if m == nil || m.heartbeats == nil {
		return
	}
	m.heartbeats.Inc()
}
