package responses

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	pkgerrors "github.com/smiyakawa/kiosk-relay/pkg/errors"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
	"github.com/smiyakawa/kiosk-relay/pkg/types"
)

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteStatus writes the flat {"status":"ok"} success body.
func WriteStatus(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, types.StatusEnvelope{Status: "ok", Message: message})
}

// WriteError maps an error to its HTTP status and flat error body, logging
// server-side failures with the full chain.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}

	meta := pkgerrors.MetadataFor(typed.Code())
	status := meta.HTTPStatus
	if override := typed.HTTPStatus(); override != 0 {
		status = override
	}

	body := types.ErrorEnvelope{
		Error: meta.PublicMessage,
		Code:  string(typed.Code()),
	}
	if meta.DetailsAllowed {
		if typed.Message() != "" {
			body.Error = typed.Message()
		}
		body.Details = typed.Details()
	}

	if logg != nil {
		dump := pkgerrors.Dump(err)
		msg := fmt.Sprintf("request failed (%d): %s", status, dump.TopMessage)
		if status >= 500 {
			logg.Error(ctx, msg, err)
		} else {
			logg.Warn(ctx, msg)
		}
	}

	WriteJSON(w, status, body)
}
