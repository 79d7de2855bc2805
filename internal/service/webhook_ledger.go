package service

import (
	"context"
	"time"

	"counselpay/internal/cache"
)

const (
	webhookKeyPrefix = "webhook:processed:"
	webhookKeyTTL    = 24 * time.Hour
)

// WebhookLedger short-circuits duplicate provider deliveries before the
// Payment row is touched. It is an optimization only: the CAS loop on the
// row is what guarantees idempotency, so a ledger miss (or Redis being
// down) is always safe.
type WebhookLedger interface {
	Claim(ctx context.Context, provider, eventID string) (bool, error)
	Release(ctx context.Context, provider, eventID string) error
}

type webhookLedger struct {
	cache *cache.Client
}

// NewWebhookLedger creates a Redis-backed webhook ledger.
func NewWebhookLedger(c *cache.Client) WebhookLedger {
	return &webhookLedger{cache: c}
}

// Claim marks an event id as being processed. Returns false when another
// delivery already holds the claim.
func (l *webhookLedger) Claim(ctx context.Context, provider, eventID string) (bool, error) {
	if eventID == "" {
		// Providers that send no event id fall through to the CAS path.
		return true, nil
	}
	return l.cache.SetNX(ctx, webhookKeyPrefix+provider+":"+eventID, []byte("1"), webhookKeyTTL)
}

// Release drops a claim so the provider's retry of a failed delivery is
// processed rather than short-circuited.
func (l *webhookLedger) Release(ctx context.Context, provider, eventID string) error {
	if eventID == "" {
		return nil
	}
	return l.cache.Delete(ctx, webhookKeyPrefix+provider+":"+eventID)
}
