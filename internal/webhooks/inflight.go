// Package webhooks holds what the payment and courier ingestion services share.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bookloop/orderflow/pkg/redis"
)

// InflightGuard marks a webhook key as being processed so a concurrent
// delivery of the same event is turned away instead of racing the first one.
// The durable at-most-once record lives in processed_events; this is only a
// short-lived lease.
type InflightGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewInflightGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*InflightGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &InflightGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Acquire reports whether the caller now holds the lease for key.
// A nil guard always grants it.
func (g *InflightGuard) Acquire(ctx context.Context, key string) (bool, error) {
	if g == nil {
		return true, nil
	}
	if key == "" {
		return false, errors.New("webhook key is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, key), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set inflight key: %w", err)
	}
	return set, nil
}

// Release drops the lease.
func (g *InflightGuard) Release(ctx context.Context, key string) error {
	if g == nil {
		return nil
	}
	if key == "" {
		return errors.New("webhook key is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, key))
}
