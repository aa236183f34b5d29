package controllers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/smiyakawa/kiosk-relay/api/responses"
	"github.com/smiyakawa/kiosk-relay/internal/stream"
	pkgerrors "github.com/smiyakawa/kiosk-relay/pkg/errors"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
)

// StreamServer writes a device's event stream until the context is cancelled.
type StreamServer interface {
	Serve(ctx context.Context, w io.Writer, flush func(), deviceID string, since *time.Time) error
}

// HandleSSE opens the resumable event stream for one device. The cursor comes
// from ?since= (epoch millis or RFC3339) or, on EventSource reconnects, the
// Last-Event-ID header.
func HandleSSE(streams StreamServer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		deviceID := r.URL.Query().Get("deviceId")
		if deviceID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "deviceId is required"))
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		var since *time.Time
		if cursor, ok := stream.ParseSince(r.URL.Query().Get("since")); ok {
			since = &cursor
		} else if cursor, ok := stream.ParseSince(r.Header.Get("Last-Event-ID")); ok {
			since = &cursor
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		_ = streams.Serve(ctx, w, flusher.Flush, deviceID, since)
	}
}
