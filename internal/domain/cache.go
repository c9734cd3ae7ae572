package domain

import (
	"context"
	"time"
)

// MarketCache provides fast market metadata lookups by symbol.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, symbol string) (Market, error)
	Invalidate(ctx context.Context, symbol string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking. It serializes concurrent
// cancel/reconcile calls against one order; settlement correctness itself
// rests on the order store's status compare-and-swap.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub delivery of order and balance events to the
// WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
