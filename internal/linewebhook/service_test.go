package linewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smiyakawa/kiosk-relay/pkg/config"
	"github.com/smiyakawa/kiosk-relay/pkg/db/models"
	pkgerrors "github.com/smiyakawa/kiosk-relay/pkg/errors"
)

type fakeProfiles struct {
	name string
	err  error
}

func (f *fakeProfiles) GetProfile(ctx context.Context, userID string) (string, error) {
	return f.name, f.err
}
func (f *fakeProfiles) GetGroupMemberProfile(ctx context.Context, groupID, userID string) (string, error) {
	return f.name, f.err
}
func (f *fakeProfiles) GetRoomMemberProfile(ctx context.Context, roomID, userID string) (string, error) {
	return f.name, f.err
}

type fakeTopic struct {
	published [][]byte
	err       error
}

func (f *fakeTopic) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.published = append(f.published, data)
	return "msg-id", nil
}

type fakeArchive struct {
	saved []*models.InboundMessage
}

func (f *fakeArchive) Save(ctx context.Context, msg *models.InboundMessage) error {
	f.saved = append(f.saved, msg)
	return nil
}

type fakeGuardStore struct {
	seen map[string]bool
	err  error
}

func (f *fakeGuardStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeGuardStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (f *fakeGuardStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.seen, key)
	}
	return nil
}

func newTestService(topic *fakeTopic, archive *fakeArchive, cfg config.LineConfig) *Service {
	return NewService(
		&fakeProfiles{name: "Mom"},
		topic,
		archive,
		NewDeliveryGuard(&fakeGuardStore{}, time.Hour),
		cfg,
		nil,
	)
}

func webhookBody(t *testing.T, events ...map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"destination": "bot", "events": events})
	require.NoError(t, err)
	return raw
}

func textEvent(messageID, sourceType string, mentionSelf bool) map[string]any {
	event := map[string]any{
		"type":           "message",
		"webhookEventId": "wh-" + messageID,
		"timestamp":      int64(1754827200000),
		"source": map[string]any{
			"type":    sourceType,
			"userId":  "u-1",
			"groupId": "g-1",
			"roomId":  "r-1",
		},
		"message": map[string]any{
			"id":         messageID,
			"type":       "text",
			"text":       "dinner at 7?",
			"quoteToken": "q-1",
		},
	}
	if mentionSelf {
		event["message"].(map[string]any)["mention"] = map[string]any{
			"mentionees": []map[string]any{{"isSelf": true}},
		}
	}
	return event
}

func TestHandlePublishesMentionedGroupMessage(t *testing.T) {
	topic := &fakeTopic{}
	archive := &fakeArchive{}
	svc := newTestService(topic, archive, config.LineConfig{DefaultDeviceID: "home-parents-1"})

	result, err := svc.Handle(context.Background(), webhookBody(t, textEvent("m-1", "group", true)))
	require.NoError(t, err)
	assert.Equal(t, Result{Received: 1, Published: 1}, result)

	require.Len(t, topic.published, 1)
	var env outboundEnvelope
	require.NoError(t, json.Unmarshal(topic.published[0], &env))
	assert.Equal(t, "wh-m-1", env.EventID)
	assert.Equal(t, "home-parents-1", env.DeviceID)
	assert.Equal(t, "line_message", env.Type)
	assert.Equal(t, "2025-08-10T12:00:00Z", env.OccurredAt)
	require.NotNil(t, env.Payload)
	assert.Equal(t, "g-1", env.Payload.RouteID, "group messages route to the group")
	assert.Equal(t, "Mom", env.Payload.SenderName)
	assert.Equal(t, "q-1", env.Payload.QuoteToken)
}

func TestHandleSkipsUnmentionedGroupMessage(t *testing.T) {
	topic := &fakeTopic{}
	archive := &fakeArchive{}
	svc := newTestService(topic, archive, config.LineConfig{})

	result, err := svc.Handle(context.Background(), webhookBody(t, textEvent("m-1", "group", false)))
	require.NoError(t, err)
	assert.Equal(t, Result{Received: 1}, result)
	assert.Empty(t, topic.published)

	// Archived even though not relayed.
	require.Len(t, archive.saved, 1)
	assert.False(t, archive.saved[0].Published)
	assert.False(t, archive.saved[0].Mentioned)
}

func TestHandlePublishAllOverridesMentionGate(t *testing.T) {
	topic := &fakeTopic{}
	svc := newTestService(topic, &fakeArchive{}, config.LineConfig{PublishAllMessages: true})

	result, err := svc.Handle(context.Background(), webhookBody(t, textEvent("m-1", "group", false)))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Published)
}

func TestHandleDirectMessageAlwaysPublishes(t *testing.T) {
	topic := &fakeTopic{}
	svc := newTestService(topic, &fakeArchive{}, config.LineConfig{})

	result, err := svc.Handle(context.Background(), webhookBody(t, textEvent("m-1", "user", false)))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Published)

	var env outboundEnvelope
	require.NoError(t, json.Unmarshal(topic.published[0], &env))
	assert.Equal(t, "u-1", env.Payload.RouteID, "direct messages route to the sender")
}

func TestHandleDedupesRedeliveredMessage(t *testing.T) {
	topic := &fakeTopic{}
	svc := newTestService(topic, &fakeArchive{}, config.LineConfig{})

	body := webhookBody(t, textEvent("m-1", "user", false))
	_, err := svc.Handle(context.Background(), body)
	require.NoError(t, err)

	result, err := svc.Handle(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, Result{Received: 1, Duplicates: 1}, result)
	assert.Len(t, topic.published, 1)
}

func TestHandleIgnoresNonTextEvents(t *testing.T) {
	topic := &fakeTopic{}
	svc := newTestService(topic, &fakeArchive{}, config.LineConfig{})

	sticker := textEvent("m-2", "user", false)
	sticker["message"].(map[string]any)["type"] = "sticker"
	follow := map[string]any{"type": "follow"}

	result, err := svc.Handle(context.Background(), webhookBody(t, sticker, follow))
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
	assert.Empty(t, topic.published)
}

func TestHandlePublishFailureReleasesGuard(t *testing.T) {
	store := &fakeGuardStore{}
	topic := &fakeTopic{err: errors.New("topic unavailable")}
	svc := NewService(&fakeProfiles{}, topic, &fakeArchive{}, NewDeliveryGuard(store, time.Hour), config.LineConfig{}, nil)

	body := webhookBody(t, textEvent("m-1", "user", false))
	_, err := svc.Handle(context.Background(), body)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())

	// Guard released, so the platform's redelivery gets another attempt.
	topic.err = nil
	result, err := svc.Handle(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Published)
}

func TestHandleGuardFailureFailsOpen(t *testing.T) {
	store := &fakeGuardStore{err: errors.New("redis down")}
	topic := &fakeTopic{}
	svc := NewService(&fakeProfiles{}, topic, &fakeArchive{}, NewDeliveryGuard(store, time.Hour), config.LineConfig{}, nil)

	result, err := svc.Handle(context.Background(), webhookBody(t, textEvent("m-1", "user", false)))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Published)
}

func TestHandleInvalidBody(t *testing.T) {
	svc := newTestService(&fakeTopic{}, &fakeArchive{}, config.LineConfig{})
	_, err := svc.Handle(context.Background(), []byte("not json"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}
