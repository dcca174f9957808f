package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mailwave/platform/telemetry-core-go/pkg/interfaces"
)

// Counter cache key namespaces. Keys are day-scoped so windows roll over
// naturally and expired days disappear on their own TTL.
const (
	counterNamespaceMetric   = "metric"
	counterNamespaceBusiness = "business"
	counterNamespaceErrors   = "errors"
)

const counterDayFormat = "2006-01-02"

// Counters provides day-windowed real-time counters over the external
// cache, used by dashboards and the anomaly detector without touching the
// durable store.
type Counters struct {
	repo   interfaces.CounterRepository
	logger *logrus.Logger
	ttl    time.Duration
}

// NewCounters creates a counter view with the given per-key TTL.
func NewCounters(repo interfaces.CounterRepository, ttl time.Duration, logger *logrus.Logger) *Counters {
	return &Counters{
		repo:   repo,
		logger: logger,
		ttl:    ttl,
	}
}

// DailyKey builds a day-namespaced counter key, e.g.
// "business:emails_sent:2026-08-30".
func DailyKey(namespace, name string, day time.Time) string {
	return fmt.Sprintf("%s:%s:%s", namespace, name, day.UTC().Format(counterDayFormat))
}

// DailyErrorKey builds the day key for the error counter, which has no
// per-name dimension.
func DailyErrorKey(day time.Time) string {
	return fmt.Sprintf("%s:%s", counterNamespaceErrors, day.UTC().Format(counterDayFormat))
}

// IncrementDaily bumps the same-day counter for a namespaced name. Cache
// failures are logged, never surfaced: counters are a best-effort view.
func (c *Counters) IncrementDaily(ctx context.Context, namespace, name string, at time.Time) {
	key := DailyKey(namespace, name, at)
	if _, err := c.repo.Increment(ctx, key, 1, c.ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to increment real-time counter")
	}
}

// IncrementErrors bumps the same-day error counter.
func (c *Counters) IncrementErrors(ctx context.Context, at time.Time) {
	key := DailyErrorKey(at)
	if _, err := c.repo.Increment(ctx, key, 1, c.ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to increment real-time counter")
	}
}

// Get reads a counter value, 0 when the key is absent.
func (c *Counters) Get(ctx context.Context, key string) (int64, error) {
	return c.repo.Get(ctx, key)
}
