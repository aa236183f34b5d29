package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/smiyakawa/kiosk-relay/internal/events"
	"github.com/smiyakawa/kiosk-relay/pkg/db/models"
	pkgerrors "github.com/smiyakawa/kiosk-relay/pkg/errors"
	"github.com/smiyakawa/kiosk-relay/pkg/line"
)

type push struct {
	to         string
	text       string
	quoteToken string
}

type fakePusher struct {
	pushes []push
	errs   []error
}

func (f *fakePusher) PushText(ctx context.Context, to, text, quoteToken string) error {
	f.pushes = append(f.pushes, push{to: to, text: text, quoteToken: quoteToken})
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type fakeMarker struct {
	deviceID string
	eventID  string
	choice   string
	calls    int
	err      error
}

func (f *fakeMarker) Upsert(ctx context.Context, event *models.KioskEvent) error { return nil }
func (f *fakeMarker) QueryAfter(ctx context.Context, deviceID string, after time.Time) ([]models.KioskEvent, error) {
	return nil, nil
}
func (f *fakeMarker) QueryRecent(ctx context.Context, deviceID string, limit int) ([]models.KioskEvent, error) {
	return nil, nil
}
func (f *fakeMarker) MarkReplied(ctx context.Context, deviceID, eventID, choiceText string) error {
	f.calls++
	f.deviceID, f.eventID, f.choice = deviceID, eventID, choiceText
	return f.err
}
func (f *fakeMarker) WithTx(tx *gorm.DB) events.Repository { return f }

func validRequest() Request {
	return Request{
		Text:     "Yes",
		DeviceID: "d-1",
		Line: LineTarget{
			RouteID:    "g-1",
			QuoteToken: "q-1",
			MessageID:  "evt-1",
			SenderName: "Mom",
			SourceText: "dinner at 7?",
			CreatedAt:  time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC).UnixMilli(),
		},
	}
}

func TestSendValidation(t *testing.T) {
	svc := NewService(&fakePusher{}, &fakeMarker{}, "", nil)

	req := validRequest()
	req.Text = "  "
	err := svc.Send(context.Background(), req)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, "text is required", typed.Message())

	req = validRequest()
	req.Line.RouteID = ""
	err = svc.Send(context.Background(), req)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, "line.routeId is required", typed.Message())
}

func TestSendHappyPathMarksReplied(t *testing.T) {
	pusher := &fakePusher{}
	marker := &fakeMarker{}
	svc := NewService(pusher, marker, "", nil)

	require.NoError(t, svc.Send(context.Background(), validRequest()))

	require.Len(t, pusher.pushes, 1)
	assert.Equal(t, "g-1", pusher.pushes[0].to)
	assert.Equal(t, "q-1", pusher.pushes[0].quoteToken)

	assert.Equal(t, 1, marker.calls)
	assert.Equal(t, "d-1", marker.deviceID)
	assert.Equal(t, "evt-1", marker.eventID)
	assert.Equal(t, "Yes", marker.choice)
}

func TestSendFallsBackOnceWithoutQuote(t *testing.T) {
	pusher := &fakePusher{errs: []error{
		&line.APIError{StatusCode: http.StatusBadRequest, Body: `{"message":"invalid quoteToken"}`},
	}}
	marker := &fakeMarker{}
	svc := NewService(pusher, marker, "", nil)

	require.NoError(t, svc.Send(context.Background(), validRequest()))

	require.Len(t, pusher.pushes, 2)
	assert.Empty(t, pusher.pushes[1].quoteToken)
	assert.Contains(t, pusher.pushes[1].text, "> From: Mom")
	assert.Contains(t, pusher.pushes[1].text, "> dinner at 7?")
	assert.True(t, strings.HasSuffix(pusher.pushes[1].text, "Yes"))

	assert.Equal(t, 1, marker.calls, "fallback success still marks replied")
}

func TestSendNoFallbackWithoutQuoteToken(t *testing.T) {
	pusher := &fakePusher{errs: []error{
		&line.APIError{StatusCode: http.StatusBadRequest, Body: "bad request"},
	}}
	svc := NewService(pusher, &fakeMarker{}, "", nil)

	req := validRequest()
	req.Line.QuoteToken = ""
	err := svc.Send(context.Background(), req)

	require.Len(t, pusher.pushes, 1)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUpstreamRejected, typed.Code())
	assert.Equal(t, http.StatusBadRequest, typed.HTTPStatus())
}

func TestSendNoFallbackOnServerError(t *testing.T) {
	pusher := &fakePusher{errs: []error{
		&line.APIError{StatusCode: http.StatusInternalServerError, Body: "boom"},
	}}
	svc := NewService(pusher, &fakeMarker{}, "", nil)

	err := svc.Send(context.Background(), validRequest())

	require.Len(t, pusher.pushes, 1, "5xx must not trigger the no-quote retry")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, http.StatusInternalServerError, typed.HTTPStatus())
}

func TestSendFallbackFailureSurfacesStatus(t *testing.T) {
	pusher := &fakePusher{errs: []error{
		&line.APIError{StatusCode: http.StatusBadRequest, Body: "invalid quoteToken"},
		&line.APIError{StatusCode: http.StatusTooManyRequests, Body: "rate limited"},
	}}
	marker := &fakeMarker{}
	svc := NewService(pusher, marker, "", nil)

	err := svc.Send(context.Background(), validRequest())

	require.Len(t, pusher.pushes, 2)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, http.StatusTooManyRequests, typed.HTTPStatus())
	assert.Zero(t, marker.calls)
}

func TestSendTransportErrorIsDependency(t *testing.T) {
	pusher := &fakePusher{errs: []error{errors.New("connection refused")}}
	svc := NewService(pusher, &fakeMarker{}, "", nil)

	err := svc.Send(context.Background(), validRequest())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
}

func TestSendMarksRepliedViaLineMessageID(t *testing.T) {
	marker := &fakeMarker{}
	svc := NewService(&fakePusher{}, marker, "home-parents-1", nil)

	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"text":"Yes","line":{"routeId":"r1","messageId":"m1"}}`), &req))
	require.NoError(t, svc.Send(context.Background(), req))

	assert.Equal(t, 1, marker.calls)
	assert.Equal(t, "home-parents-1", marker.deviceID)
	assert.Equal(t, "m1", marker.eventID)
}

func TestSendEventIDAliasWinsOverMessageID(t *testing.T) {
	marker := &fakeMarker{}
	svc := NewService(&fakePusher{}, marker, "", nil)

	req := validRequest()
	req.EventID = "evt-alias"
	require.NoError(t, svc.Send(context.Background(), req))
	assert.Equal(t, "evt-alias", marker.eventID)
}

func TestSendSkipsMarkWithoutEventIdentity(t *testing.T) {
	marker := &fakeMarker{}
	svc := NewService(&fakePusher{}, marker, "", nil)

	req := validRequest()
	req.EventID = ""
	req.Line.MessageID = ""
	require.NoError(t, svc.Send(context.Background(), req))
	assert.Zero(t, marker.calls)
}

func TestSendMarkFailureStillSucceeds(t *testing.T) {
	marker := &fakeMarker{err: pkgerrors.New(pkgerrors.CodeNotFound, "event not found")}
	svc := NewService(&fakePusher{}, marker, "", nil)

	require.NoError(t, svc.Send(context.Background(), validRequest()))
	assert.Equal(t, 1, marker.calls)
}
