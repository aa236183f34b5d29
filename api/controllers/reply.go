package controllers

import (
	"context"
	"net/http"

	"github.com/smiyakawa/kiosk-relay/api/responses"
	"github.com/smiyakawa/kiosk-relay/api/validators"
	"github.com/smiyakawa/kiosk-relay/internal/relay"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
)

// ReplySender delivers one kiosk reply.
type ReplySender interface {
	Send(ctx context.Context, req relay.Request) error
}

// HandleReply accepts a kiosk's tap and relays it back through the messaging
// platform. Field-level rules live in the relay service so their error
// messages stay stable.
func HandleReply(sender ReplySender, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req relay.Request
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := sender.Send(ctx, req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteStatus(w, http.StatusOK, "")
	}
}
