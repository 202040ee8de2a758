package domain

import (
	"context"
	"time"
)

// RateLimiter counts submissions against a key, such as a swapper address,
// within a sliding window.
type RateLimiter interface {
	// Allow records one hit on key. It returns false, without counting the
	// hit, once limit hits already fall inside window. A limit <= 0 allows
	// everything.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager hands out short-lived exclusive locks. The order service
// takes one per order hash so concurrent duplicates cannot both persist.
type LockManager interface {
	// Acquire returns ErrLockHeld if key is taken. The release func is
	// safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// SignalBus fans order events out to every service instance, which
// relays them to websocket subscribers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe streams payloads until ctx is done, then closes the channel.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
