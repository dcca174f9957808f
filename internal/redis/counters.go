package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mailwave/platform/telemetry-core-go/internal/config"
	"github.com/mailwave/platform/telemetry-core-go/pkg/interfaces"
)

// CounterRedisRepository implements CounterRepository using Redis.
type CounterRedisRepository struct {
	client *redis.Client
	logger *logrus.Logger
	config *config.CoreConfig
}

// NewCounterRepository creates a new Redis-based counter repository.
func NewCounterRepository(client *redis.Client, logger *logrus.Logger, cfg *config.CoreConfig) interfaces.CounterRepository {
	return &CounterRedisRepository{
		client: client,
		logger: logger,
		config: cfg,
	}
}

// Increment atomically adds amount to the counter and returns the new
// value. INCRBY and EXPIRE run in one pipeline round trip; the NX expire
// leaves an existing TTL untouched so the window stays anchored to the
// first event.
func (r *CounterRedisRepository) Increment(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, amount)
	if ttl > 0 {
		pipe.ExpireNX(ctx, key, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}

	return incr.Val(), nil
}

// Get returns the current counter value, 0 when the key is absent.
func (r *CounterRedisRepository) Get(ctx context.Context, key string) (int64, error) {
	value, err := r.client.Get(ctx, key).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get counter %s: %w", key, err)
	}

	return value, nil
}

// Ping checks Redis connection health.
func (r *CounterRedisRepository) Ping(ctx context.Context) error {
	if _, err := r.client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	return nil
}
