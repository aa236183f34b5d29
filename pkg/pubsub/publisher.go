package pubsub

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// EventsTopic wraps the raw publisher behind a blocking publish call so
// callers get an error they can act on instead of a deferred result.
type EventsTopic struct {
	publisher *pubsub.Publisher
}

// EventsTopic returns the kiosk events topic handle, or nil when the topic is
// not configured.
func (c *Client) EventsTopic() *EventsTopic {
	publisher := c.EventsPublisher()
	if publisher == nil {
		return nil
	}
	return &EventsTopic{publisher: publisher}
}

// Publish sends one message and waits for the server-assigned id.
func (t *EventsTopic) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	if t == nil || t.publisher == nil {
		return "", errors.New("events topic is not configured")
	}
	result := t.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publishing event: %w", err)
	}
	return id, nil
}

// Stop flushes outstanding messages. Call on shutdown.
func (t *EventsTopic) Stop() {
	if t == nil || t.publisher == nil {
		return
	}
	t.publisher.Stop()
}
