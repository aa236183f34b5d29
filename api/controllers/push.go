package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/smiyakawa/kiosk-relay/api/responses"
	"github.com/smiyakawa/kiosk-relay/internal/envelope"
	pkgerrors "github.com/smiyakawa/kiosk-relay/pkg/errors"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
)

const maxPushBody = 1 << 20

// EnvelopeIngestor lands one decoded envelope in the event log.
type EnvelopeIngestor interface {
	Ingest(ctx context.Context, event *envelope.Event) error
}

// HandlePush receives queue push deliveries. Malformed envelopes get a 400 so
// the queue drops them; store failures get a 500 so the queue redelivers.
func HandlePush(ingestor EnvelopeIngestor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxPushBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "reading push body"))
			return
		}

		event, err := envelope.ParsePush(body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := ingestor.Ingest(ctx, event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
