package mpesawebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/duka/supermarket-backend/pkg/redis"
)

// GuardScope namespaces callback dedupe keys.
const GuardScope = "mpesa-callback"

// IdempotencyGuard marks CheckoutRequestIDs in Redis so concurrent duplicate
// deliveries short-circuit before touching the database.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: GuardScope}, nil
}

// CheckAndMark returns true when the delivery was already seen.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, checkoutRequestID string, resultCode int) (bool, error) {
	if checkoutRequestID == "" {
		return false, errors.New("checkout request id is required")
	}
	set, err := g.store.SetNX(ctx, g.key(checkoutRequestID, resultCode), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Release forgets a delivery so the gateway's retry is processed.
func (g *IdempotencyGuard) Release(ctx context.Context, checkoutRequestID string, resultCode int) error {
	if checkoutRequestID == "" {
		return errors.New("checkout request id is required")
	}
	return g.store.Del(ctx, g.key(checkoutRequestID, resultCode))
}

func (g *IdempotencyGuard) key(checkoutRequestID string, resultCode int) string {
	return g.store.IdempotencyKey(g.scope, fmt.Sprintf("%s:%d", checkoutRequestID, resultCode))
}
