package events

import (
	"context"

	"github.com/smiyakawa/kiosk-relay/internal/envelope"
	"github.com/smiyakawa/kiosk-relay/pkg/db/models"
	"github.com/smiyakawa/kiosk-relay/pkg/enums"
	pkgerrors "github.com/smiyakawa/kiosk-relay/pkg/errors"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
)

// ChoiceGenerator derives the binary reply pair for a text message.
type ChoiceGenerator interface {
	Generate(ctx context.Context, senderName, messageText string) *models.DerivedChoices
}

// Ingestor lands decoded envelopes in the event log, enriching text messages
// with generated reply choices first.
type Ingestor struct {
	repo    Repository
	choices ChoiceGenerator
	logg    *logger.Logger
}

func NewIngestor(repo Repository, choices ChoiceGenerator, logg *logger.Logger) *Ingestor {
	return &Ingestor{repo: repo, choices: choices, logg: logg}
}

// Ingest upserts one decoded event. Idempotent: a redelivery merges into the
// existing row without touching created_at or reply state.
func (i *Ingestor) Ingest(ctx context.Context, event *envelope.Event) error {
	if i.logg != nil {
		ctx = i.logg.WithDeviceID(ctx, event.DeviceID)
		ctx = i.logg.WithEventID(ctx, event.EventID)
	}

	payload, err := event.Payload.Map()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rendering payload")
	}

	record := &models.KioskEvent{
		DeviceID:   event.DeviceID,
		EventID:    event.EventID,
		Type:       event.Type,
		Status:     enums.EventStatusNew,
		Source:     eventSource(event),
		Payload:    payload,
		OccurredAt: event.OccurredAt,
	}
	if event.Line != (models.LineRouting{}) {
		line := event.Line
		record.Line = &line
	}

	if msg := event.Payload.Message; msg != nil && i.choices != nil && !msg.IsImageMessage() {
		record.Gemini = i.choices.Generate(ctx, msg.SenderName, msg.Text)
	}

	if err := i.repo.Upsert(ctx, record); err != nil {
		return err
	}
	if i.logg != nil {
		i.logg.Info(ctx, "event stored")
	}
	return nil
}

// eventSource attributes only decoded message payloads to the messaging
// platform; opaque passthrough events keep an empty source.
func eventSource(event *envelope.Event) enums.EventSource {
	if event.Payload.Kind == envelope.PayloadKindMessage {
		return enums.EventSourceLine
	}
	return ""
}
