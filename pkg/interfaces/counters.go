package interfaces

import (
	"context"
	"time"
)

// CounterRepository defines fixed-window counters backed by an external
// cache. Increments must be atomic so concurrent writers from multiple
// processes never lose updates.
type CounterRepository interface {
	// Increment atomically adds amount to the counter and returns the new
	// value. The TTL is applied only when the key is first created, so a
	// window expires relative to its first event.
	Increment(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error)

	// Get returns the current counter value, 0 when the key is absent.
	Get(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
}
