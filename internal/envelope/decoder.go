package envelope

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/smiyakawa/kiosk-relay/pkg/db/models"
	"github.com/smiyakawa/kiosk-relay/pkg/db/types"
	"github.com/smiyakawa/kiosk-relay/pkg/enums"
	pkgerrors "github.com/smiyakawa/kiosk-relay/pkg/errors"
)

// placeholderText substitutes for payloads carrying neither text nor an image
// so kiosks never render an empty message.
const placeholderText = "(no text)"

// pushWrapper mirrors the Pub/Sub push delivery body.
type pushWrapper struct {
	Message struct {
		Data       string            `json:"data"`
		MessageID  string            `json:"messageId"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type inboundEvent struct {
	EventID    string          `json:"eventId"`
	DeviceID   string          `json:"deviceId"`
	Type       string          `json:"type"`
	OccurredAt string          `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Event is the decoded, validated form of one queue delivery.
type Event struct {
	EventID    string
	DeviceID   string
	Type       string
	OccurredAt *time.Time
	Payload    Payload
	Line       models.LineRouting
}

// PayloadKind discriminates the payload union.
type PayloadKind string

const (
	PayloadKindMessage PayloadKind = "message"
	PayloadKindOpaque  PayloadKind = "opaque"
)

// Payload is a tagged union over known event types, with an opaque fallback
// for types the decoder does not understand.
type Payload struct {
	Kind    PayloadKind
	Message *MessagePayload
	Opaque  types.JSONMap
}

// MessagePayload is the line_message payload shape.
type MessagePayload struct {
	Text        string    `json:"text,omitempty"`
	SenderName  string    `json:"senderName,omitempty"`
	MessageID   string    `json:"messageId,omitempty"`
	QuoteToken  string    `json:"quoteToken,omitempty"`
	GroupID     string    `json:"groupId,omitempty"`
	RoomID      string    `json:"roomId,omitempty"`
	UserID      string    `json:"userId,omitempty"`
	RouteID     string    `json:"routeId,omitempty"`
	SourceType  string    `json:"sourceType,omitempty"`
	MessageType string    `json:"messageType,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Image       *ImageRef `json:"image,omitempty"`
}

// ImageRef points at an already-stored image blob.
type ImageRef struct {
	URL string `json:"url,omitempty"`
}

// HasImage reports whether the payload references an image.
func (p MessagePayload) HasImage() bool {
	if p.ImageURL != "" {
		return true
	}
	return p.Image != nil && p.Image.URL != ""
}

// IsImageMessage reports whether the message is primarily an image, which
// skips choice generation.
func (p MessagePayload) IsImageMessage() bool {
	return p.MessageType == "image" || p.HasImage()
}

// Map renders the payload for jsonb persistence.
func (p Payload) Map() (types.JSONMap, error) {
	if p.Kind == PayloadKindOpaque {
		return p.Opaque, nil
	}
	if p.Message == nil {
		return types.JSONMap{}, nil
	}
	raw, err := json.Marshal(p.Message)
	if err != nil {
		return nil, err
	}
	var m types.JSONMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ParsePush decodes and validates a queue push delivery. Pure: no store access,
// no retries. Failures map to 400 so the queue does not redeliver garbage.
func ParsePush(body []byte) (*Event, error) {
	var wrapper pushWrapper
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid push body")
	}
	if strings.TrimSpace(wrapper.Message.Data) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "missing message.data")
	}

	decoded, err := base64.StdEncoding.DecodeString(wrapper.Message.Data)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid base64 JSON")
	}

	var inbound inboundEvent
	if err := json.Unmarshal(decoded, &inbound); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid base64 JSON")
	}

	if inbound.EventID == "" || inbound.DeviceID == "" || inbound.Type == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "eventId, deviceId, type are required")
	}

	event := &Event{
		EventID:    inbound.EventID,
		DeviceID:   inbound.DeviceID,
		Type:       inbound.Type,
		OccurredAt: parseOccurredAt(inbound.OccurredAt),
	}

	if inbound.Type == enums.EventTypeLineMessage {
		payload, line, err := decodeMessagePayload(inbound.Payload)
		if err != nil {
			return nil, err
		}
		event.Payload = Payload{Kind: PayloadKindMessage, Message: payload}
		event.Line = line
		return event, nil
	}

	opaque := types.JSONMap{}
	if len(inbound.Payload) > 0 {
		if err := json.Unmarshal(inbound.Payload, &opaque); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payload")
		}
	}
	event.Payload = Payload{Kind: PayloadKindOpaque, Opaque: opaque}
	return event, nil
}

func decodeMessagePayload(raw json.RawMessage) (*MessagePayload, models.LineRouting, error) {
	payload := &MessagePayload{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, models.LineRouting{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payload")
		}
	}

	if payload.Text == "" && !payload.HasImage() {
		payload.Text = placeholderText
	}

	// Least-data projection: only what a later reply needs.
	line := models.LineRouting{
		RouteID:    payload.RouteID,
		QuoteToken: payload.QuoteToken,
		MessageID:  payload.MessageID,
		SourceType: enums.LineSourceType(payload.SourceType),
		SenderName: payload.SenderName,
		GroupID:    payload.GroupID,
		RoomID:     payload.RoomID,
		UserID:     payload.UserID,
	}
	return payload, line, nil
}

func parseOccurredAt(value string) *time.Time {
	if value == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	ts = ts.UTC()
	return &ts
}
