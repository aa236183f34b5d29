package linewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smiyakawa/kiosk-relay/internal/envelope"
	"github.com/smiyakawa/kiosk-relay/pkg/config"
	"github.com/smiyakawa/kiosk-relay/pkg/db/models"
	"github.com/smiyakawa/kiosk-relay/pkg/db/types"
	"github.com/smiyakawa/kiosk-relay/pkg/enums"
	pkgerrors "github.com/smiyakawa/kiosk-relay/pkg/errors"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
)

// ProfileResolver resolves sender display names.
type ProfileResolver interface {
	GetProfile(ctx context.Context, userID string) (string, error)
	GetGroupMemberProfile(ctx context.Context, groupID, userID string) (string, error)
	GetRoomMemberProfile(ctx context.Context, roomID, userID string) (string, error)
}

// TopicPublisher pushes a normalized envelope onto the events topic.
type TopicPublisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

// Service turns raw LINE webhook deliveries into normalized envelopes on the
// events topic, archiving every text message along the way.
type Service struct {
	profiles ProfileResolver
	topic    TopicPublisher
	archive  ArchiveRepository
	guard    *DeliveryGuard
	cfg      config.LineConfig
	logg     *logger.Logger
}

func NewService(profiles ProfileResolver, topic TopicPublisher, archive ArchiveRepository, guard *DeliveryGuard, cfg config.LineConfig, logg *logger.Logger) *Service {
	return &Service{
		profiles: profiles,
		topic:    topic,
		archive:  archive,
		guard:    guard,
		cfg:      cfg,
		logg:     logg,
	}
}

type webhookPayload struct {
	Destination string         `json:"destination"`
	Events      []webhookEvent `json:"events"`
}

type webhookEvent struct {
	Type           string `json:"type"`
	WebhookEventID string `json:"webhookEventId"`
	Timestamp      int64  `json:"timestamp"`
	Source         struct {
		Type    string `json:"type"`
		UserID  string `json:"userId"`
		GroupID string `json:"groupId"`
		RoomID  string `json:"roomId"`
	} `json:"source"`
	Message struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Text       string `json:"text"`
		QuoteToken string `json:"quoteToken"`
		Mention    *struct {
			Mentionees []struct {
				IsSelf bool `json:"isSelf"`
			} `json:"mentionees"`
		} `json:"mention"`
	} `json:"message"`
}

func (e webhookEvent) mentioned() bool {
	if e.Message.Mention == nil {
		return false
	}
	for _, m := range e.Message.Mention.Mentionees {
		if m.IsSelf {
			return true
		}
	}
	return false
}

// routeID is the push destination: group and room beat the individual sender.
func (e webhookEvent) routeID() string {
	switch e.Source.Type {
	case string(enums.LineSourceGroup):
		return e.Source.GroupID
	case string(enums.LineSourceRoom):
		return e.Source.RoomID
	default:
		return e.Source.UserID
	}
}

// Result summarizes one webhook delivery for logging.
type Result struct {
	Received   int
	Published  int
	Duplicates int
}

// Handle processes one webhook delivery. Only text message events are
// considered; group and room messages relay only when the bot is mentioned,
// unless PublishAllMessages is set. Every considered message is archived,
// relayed or not.
func (s *Service) Handle(ctx context.Context, body []byte) (Result, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook body")
	}

	result := Result{}
	for _, event := range payload.Events {
		if event.Type != "message" || event.Message.Type != "text" {
			continue
		}
		result.Received++

		first, err := s.guard.FirstDelivery(ctx, event.Message.ID)
		if err != nil && s.logg != nil {
			s.logg.Warn(ctx, fmt.Sprintf("delivery guard unavailable, processing anyway: %v", err))
		}
		if !first {
			result.Duplicates++
			continue
		}

		published, err := s.handleMessage(ctx, event)
		if err != nil {
			s.guard.Release(ctx, event.Message.ID)
			return result, err
		}
		if published {
			result.Published++
		}
	}
	return result, nil
}

func (s *Service) handleMessage(ctx context.Context, event webhookEvent) (bool, error) {
	mentioned := event.mentioned()
	publish := event.Source.Type == string(enums.LineSourceUser) ||
		s.cfg.PublishAllMessages ||
		mentioned

	senderName := s.resolveSenderName(ctx, event)
	occurredAt := time.UnixMilli(event.Timestamp).UTC()

	s.archiveMessage(ctx, event, senderName, mentioned, publish, occurredAt)

	if !publish {
		if s.logg != nil {
			s.logg.Debug(ctx, "message without mention, not relayed")
		}
		return false, nil
	}

	data, err := s.buildEnvelope(event, senderName, occurredAt)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building envelope")
	}
	if _, err := s.topic.Publish(ctx, data, map[string]string{"eventType": enums.EventTypeLineMessage}); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publishing envelope")
	}
	return true, nil
}

// resolveSenderName is best effort; a missing profile never blocks the relay.
func (s *Service) resolveSenderName(ctx context.Context, event webhookEvent) string {
	if s.profiles == nil || event.Source.UserID == "" {
		return ""
	}
	var (
		name string
		err  error
	)
	switch event.Source.Type {
	case string(enums.LineSourceGroup):
		name, err = s.profiles.GetGroupMemberProfile(ctx, event.Source.GroupID, event.Source.UserID)
	case string(enums.LineSourceRoom):
		name, err = s.profiles.GetRoomMemberProfile(ctx, event.Source.RoomID, event.Source.UserID)
	default:
		name, err = s.profiles.GetProfile(ctx, event.Source.UserID)
	}
	if err != nil {
		if s.logg != nil {
			s.logg.Debug(ctx, fmt.Sprintf("profile lookup failed: %v", err))
		}
		return ""
	}
	return name
}

func (s *Service) archiveMessage(ctx context.Context, event webhookEvent, senderName string, mentioned, published bool, occurredAt time.Time) {
	if s.archive == nil {
		return
	}
	msg := &models.InboundMessage{
		MessageID:  event.Message.ID,
		Text:       event.Message.Text,
		SourceType: enums.LineSourceType(event.Source.Type),
		Mentioned:  mentioned,
		Published:  published,
		OccurredAt: occurredAt,
		CreatedAt:  time.Now().UTC(),
		Raw: types.JSONMap{
			"webhookEventId": event.WebhookEventID,
			"quoteToken":     event.Message.QuoteToken,
		},
	}
	if senderName != "" {
		msg.SenderName = &senderName
	}
	if event.Source.UserID != "" {
		userID := event.Source.UserID
		msg.UserID = &userID
	}
	if route := event.routeID(); route != "" {
		msg.RouteID = &route
	}
	if err := s.archive.Save(ctx, msg); err != nil && s.logg != nil {
		s.logg.Warn(ctx, fmt.Sprintf("archiving inbound message failed: %v", err))
	}
}

type outboundEnvelope struct {
	EventID    string                   `json:"eventId"`
	DeviceID   string                   `json:"deviceId"`
	Type       string                   `json:"type"`
	OccurredAt string                   `json:"occurredAt"`
	Payload    *envelope.MessagePayload `json:"payload"`
}

func (s *Service) buildEnvelope(event webhookEvent, senderName string, occurredAt time.Time) ([]byte, error) {
	eventID := event.WebhookEventID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	return json.Marshal(outboundEnvelope{
		EventID:    eventID,
		DeviceID:   s.cfg.DefaultDeviceID,
		Type:       enums.EventTypeLineMessage,
		OccurredAt: occurredAt.Format(time.RFC3339),
		Payload: &envelope.MessagePayload{
			Text:       event.Message.Text,
			SenderName: senderName,
			MessageID:  event.Message.ID,
			QuoteToken: event.Message.QuoteToken,
			GroupID:    event.Source.GroupID,
			RoomID:     event.Source.RoomID,
			UserID:     event.Source.UserID,
			RouteID:    event.routeID(),
			SourceType: event.Source.Type,
		},
	})
}
