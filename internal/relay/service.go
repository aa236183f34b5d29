package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smiyakawa/kiosk-relay/internal/events"
	pkgerrors "github.com/smiyakawa/kiosk-relay/pkg/errors"
	"github.com/smiyakawa/kiosk-relay/pkg/line"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
)

// Pusher is the messaging-platform surface the relay needs.
type Pusher interface {
	PushText(ctx context.Context, to, text, quoteToken string) error
}

// Request is a kiosk's outbound reply. Line carries the routing projection the
// kiosk received on the stream; line.messageId names the event to mark replied
// (eventId is accepted as an alias).
type Request struct {
	Text     string     `json:"text"`
	DeviceID string     `json:"deviceId"`
	EventID  string     `json:"eventId"`
	Line     LineTarget `json:"line"`
}

// LineTarget names the destination plus the context needed when the platform
// rejects a stale quote token and the reply is re-sent without one.
type LineTarget struct {
	RouteID    string `json:"routeId"`
	QuoteToken string `json:"quoteToken"`
	MessageID  string `json:"messageId"`
	SourceType string `json:"sourceType"`
	SenderName string `json:"senderName"`
	SourceText string `json:"sourceText"`
	CreatedAt  int64  `json:"createdAt"`
}

// eventKey resolves which event this reply answers.
func (r Request) eventKey() string {
	if r.EventID != "" {
		return r.EventID
	}
	return r.Line.MessageID
}

// Service sends kiosk replies back through the messaging platform.
type Service struct {
	pusher          Pusher
	repo            events.Repository
	defaultDeviceID string
	logg            *logger.Logger
}

func NewService(pusher Pusher, repo events.Repository, defaultDeviceID string, logg *logger.Logger) *Service {
	return &Service{pusher: pusher, repo: repo, defaultDeviceID: defaultDeviceID, logg: logg}
}

// Send validates and delivers one reply. A quote-token rejection triggers a
// single no-quote retry with the original message quoted inline instead; any
// other failure surfaces the platform's status to the caller.
func (s *Service) Send(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "text is required")
	}
	if strings.TrimSpace(req.Line.RouteID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "line.routeId is required")
	}

	if s.logg != nil {
		if req.DeviceID != "" {
			ctx = s.logg.WithDeviceID(ctx, req.DeviceID)
		}
		if key := req.eventKey(); key != "" {
			ctx = s.logg.WithEventID(ctx, key)
		}
	}

	err := s.pusher.PushText(ctx, req.Line.RouteID, req.Text, req.Line.QuoteToken)
	if err != nil {
		var apiErr *line.APIError
		if !errors.As(err, &apiErr) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "line push failed")
		}
		if req.Line.QuoteToken == "" || !apiErr.IsClientError() {
			return upstreamRejected(apiErr)
		}

		// Expired or foreign quote token. Retry once without it, carrying the
		// original message as inline context instead.
		if s.logg != nil {
			s.logg.Warn(ctx, fmt.Sprintf("quote push rejected (%d), retrying without quote", apiErr.StatusCode))
		}
		if err := s.pusher.PushText(ctx, req.Line.RouteID, fallbackText(req), ""); err != nil {
			if errors.As(err, &apiErr) {
				return upstreamRejected(apiErr)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "line push failed")
		}
	}

	s.markReplied(ctx, req)
	return nil
}

// markReplied is best effort: the reply has already reached the recipient, so
// a store failure must not fail the request.
func (s *Service) markReplied(ctx context.Context, req Request) {
	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = s.defaultDeviceID
	}
	eventKey := req.eventKey()
	if deviceID == "" || eventKey == "" {
		if s.logg != nil {
			s.logg.Debug(ctx, "reply sent without event identity, skipping replied mark")
		}
		return
	}
	if err := s.repo.MarkReplied(ctx, deviceID, eventKey, req.Text); err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, fmt.Sprintf("marking event replied failed: %v", err))
		}
	}
}

func upstreamRejected(apiErr *line.APIError) error {
	return pkgerrors.Wrap(pkgerrors.CodeUpstreamRejected, apiErr, "line rejected push").
		WithHTTPStatus(apiErr.StatusCode).
		WithDetails(apiErr.Body)
}

// fallbackText reproduces the quote visually when the platform refuses the
// quote token.
func fallbackText(req Request) string {
	var b strings.Builder
	if req.Line.SenderName != "" {
		fmt.Fprintf(&b, "> From: %s\n", req.Line.SenderName)
	}
	if req.Line.CreatedAt > 0 {
		at := time.UnixMilli(req.Line.CreatedAt).UTC()
		fmt.Fprintf(&b, "> At: %s\n", at.Format("2006-01-02 15:04"))
	}
	if req.Line.SourceText != "" {
		fmt.Fprintf(&b, "> %s\n", req.Line.SourceText)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(req.Text)
	return b.String()
}
