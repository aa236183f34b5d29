package controllers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreams struct {
	deviceID string
	since    *time.Time
	output   string
}

func (f *fakeStreams) Serve(ctx context.Context, w io.Writer, flush func(), deviceID string, since *time.Time) error {
	f.deviceID = deviceID
	f.since = since
	if f.output != "" {
		io.WriteString(w, f.output)
		flush()
	}
	return nil
}

func TestHandleSSERequiresDeviceID(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleSSE(&fakeStreams{}, nil)(rec, httptest.NewRequest(http.MethodGet, "/sse", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "deviceId is required")
}

func TestHandleSSESetsStreamHeaders(t *testing.T) {
	streams := &fakeStreams{output: "event: kiosk_event\nid: 1\ndata: {}\n\n"}
	rec := httptest.NewRecorder()

	HandleSSE(streams, nil)(rec, httptest.NewRequest(http.MethodGet, "/sse?deviceId=d-1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "d-1", streams.deviceID)
	assert.Nil(t, streams.since)
	assert.Contains(t, rec.Body.String(), "event: kiosk_event")
}

func TestHandleSSEParsesSinceQuery(t *testing.T) {
	streams := &fakeStreams{}
	rec := httptest.NewRecorder()

	HandleSSE(streams, nil)(rec, httptest.NewRequest(http.MethodGet, "/sse?deviceId=d-1&since=1754827200000", nil))

	require.NotNil(t, streams.since)
	assert.Equal(t, time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC), *streams.since)
}

func TestHandleSSEFallsBackToLastEventID(t *testing.T) {
	streams := &fakeStreams{}
	rec := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodGet, "/sse?deviceId=d-1", nil)
	req.Header.Set("Last-Event-ID", "1754827200000")
	HandleSSE(streams, nil)(rec, req)

	require.NotNil(t, streams.since)
	assert.Equal(t, int64(1754827200000), streams.since.UnixMilli())
}

func TestHandleSSEQueryCursorBeatsHeader(t *testing.T) {
	streams := &fakeStreams{}
	rec := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodGet, "/sse?deviceId=d-1&since=2025-08-10T12:00:00Z", nil)
	req.Header.Set("Last-Event-ID", "99")
	HandleSSE(streams, nil)(rec, req)

	require.NotNil(t, streams.since)
	assert.Equal(t, int64(1754827200000), streams.since.UnixMilli())
}
