package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smiyakawa/kiosk-relay/internal/envelope"
	"github.com/smiyakawa/kiosk-relay/pkg/db/models"
	"github.com/smiyakawa/kiosk-relay/pkg/enums"
)

type fakeChoices struct {
	calls  int
	sender string
	text   string
}

func (f *fakeChoices) Generate(ctx context.Context, senderName, messageText string) *models.DerivedChoices {
	f.calls++
	f.sender, f.text = senderName, messageText
	return &models.DerivedChoices{Choice1: "Sure", Choice2: "Later", GeneratedAt: time.Now().UTC()}
}

func messageEvent(text string) *envelope.Event {
	return &envelope.Event{
		EventID:  "evt-1",
		DeviceID: "d-1",
		Type:     enums.EventTypeLineMessage,
		Payload: envelope.Payload{
			Kind:    envelope.PayloadKindMessage,
			Message: &envelope.MessagePayload{Text: text, SenderName: "Mom", QuoteToken: "q-1", RouteID: "g-1"},
		},
		Line: models.LineRouting{RouteID: "g-1", QuoteToken: "q-1", SenderName: "Mom"},
	}
}

func TestIngestStoresEnrichedEvent(t *testing.T) {
	repo := newTestRepo(t)
	gen := &fakeChoices{}
	ingestor := NewIngestor(repo, gen, nil)

	require.NoError(t, ingestor.Ingest(context.Background(), messageEvent("dinner at 7?")))

	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, "Mom", gen.sender)
	assert.Equal(t, "dinner at 7?", gen.text)

	rows, err := repo.QueryRecent(context.Background(), "d-1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventStatusNew, rows[0].Status)
	assert.Equal(t, enums.EventSourceLine, rows[0].Source)
	assert.Equal(t, "dinner at 7?", rows[0].Payload["text"])
	require.NotNil(t, rows[0].Line)
	assert.Equal(t, "g-1", rows[0].Line.RouteID)
	require.NotNil(t, rows[0].Gemini)
	assert.Equal(t, "Sure", rows[0].Gemini.Choice1)
}

func TestIngestSkipsChoicesForImageMessages(t *testing.T) {
	repo := newTestRepo(t)
	gen := &fakeChoices{}
	ingestor := NewIngestor(repo, gen, nil)

	event := messageEvent("")
	event.Payload.Message.Text = ""
	event.Payload.Message.MessageType = "image"
	event.Payload.Message.ImageURL = "https://blobs.example/i.jpg"

	require.NoError(t, ingestor.Ingest(context.Background(), event))
	assert.Zero(t, gen.calls)
}

func TestIngestOpaqueEventHasNoRoutingOrChoices(t *testing.T) {
	repo := newTestRepo(t)
	gen := &fakeChoices{}
	ingestor := NewIngestor(repo, gen, nil)

	event := &envelope.Event{
		EventID:  "evt-2",
		DeviceID: "d-1",
		Type:     "sensor_reading",
		Payload:  envelope.Payload{Kind: envelope.PayloadKindOpaque, Opaque: map[string]any{"celsius": 21.5}},
	}
	require.NoError(t, ingestor.Ingest(context.Background(), event))
	assert.Zero(t, gen.calls)

	rows, err := repo.QueryRecent(context.Background(), "d-1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Source)
	assert.Nil(t, rows[0].Line)
	assert.Nil(t, rows[0].Gemini)
}

func TestIngestWithoutGeneratorStoresPlainEvent(t *testing.T) {
	repo := newTestRepo(t)
	ingestor := NewIngestor(repo, nil, nil)

	require.NoError(t, ingestor.Ingest(context.Background(), messageEvent("hi")))

	rows, err := repo.QueryRecent(context.Background(), "d-1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Gemini)
}
