package controllers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/smiyakawa/kiosk-relay/api/responses"
	"github.com/smiyakawa/kiosk-relay/internal/linewebhook"
	"github.com/smiyakawa/kiosk-relay/pkg/config"
	pkgerrors "github.com/smiyakawa/kiosk-relay/pkg/errors"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
)

const (
	signatureHeader = "x-line-signature"
	maxCallbackBody = 1 << 20
)

// WebhookHandler processes one verified webhook delivery.
type WebhookHandler interface {
	Handle(ctx context.Context, body []byte) (linewebhook.Result, error)
}

// HandleCallback terminates the messaging platform's webhook. The signature is
// verified against the raw body before any parsing happens.
func HandleCallback(handler WebhookHandler, cfg config.LineConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "reading webhook body"))
			return
		}

		if !cfg.SkipSignatureValidation {
			if !linewebhook.ValidSignature(cfg.ChannelSecret, body, r.Header.Get(signatureHeader)) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature"))
				return
			}
		}

		result, err := handler.Handle(ctx, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil && result.Received > 0 {
			logg.Info(ctx, fmt.Sprintf(
				"webhook handled: %d received, %d published, %d duplicates",
				result.Received, result.Published, result.Duplicates,
			))
		}
		responses.WriteStatus(w, http.StatusOK, "")
	}
}
