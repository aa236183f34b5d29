package linewebhook

import (
	"context"
	"time"

	"github.com/smiyakawa/kiosk-relay/pkg/redis"
)

const (
	guardScope      = "line-webhook"
	defaultGuardTTL = 24 * time.Hour
)

// DeliveryGuard short-circuits webhook redeliveries of the same message. It is
// an optimization, not the source of truth: the archive's unique message index
// and the event log's merge both tolerate duplicates.
type DeliveryGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewDeliveryGuard(store redis.IdempotencyStore, ttl time.Duration) *DeliveryGuard {
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return &DeliveryGuard{store: store, ttl: ttl}
}

// FirstDelivery reports whether this message id has not been seen yet. Fails
// open: if redis is unavailable the message is treated as new and the
// downstream dedupe layers absorb any duplicate.
func (g *DeliveryGuard) FirstDelivery(ctx context.Context, messageID string) (bool, error) {
	if g == nil || g.store == nil || messageID == "" {
		return true, nil
	}
	key := g.store.IdempotencyKey(guardScope, messageID)
	set, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return true, err
	}
	return set, nil
}

// Release forgets a message id so a failed handling attempt can be retried by
// the platform's redelivery.
func (g *DeliveryGuard) Release(ctx context.Context, messageID string) {
	if g == nil || g.store == nil || messageID == "" {
		return
	}
	_ = g.store.Del(ctx, g.store.IdempotencyKey(guardScope, messageID))
}
