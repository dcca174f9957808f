package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// Operation is an outbound call protected by the resilience layer.
type Operation func(ctx context.Context) error

// RetryConfig controls retry-with-backoff behavior.
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        float64
}

// DefaultRetryConfig matches the production notification path: three
// attempts, exponential backoff from 1s capped at 10s, ~10% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2,
		Jitter:        0.1,
	}
}

// Retry runs op, retrying transient failures with exponential backoff.
// Failures are classified before every retry; auth and client errors fail
// fast without consuming the retry budget. The last error is returned
// when attempts are exhausted. Sleeps respect ctx cancellation.
func Retry(ctx context.Context, name string, op Operation, cfg RetryConfig, logger *logrus.Logger) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(cfg, attempt-1)
			logger.WithFields(logrus.Fields{
				"operation": name,
				"attempt":   attempt + 1,
				"delay":     delay,
			}).Warn("Retrying after transient failure")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		class := Classify(lastErr)
		if !class.Retryable() {
			logger.WithFields(logrus.Fields{
				"operation": name,
				"class":     class,
			}).WithError(lastErr).Warn("Permanent failure, not retrying")
			return lastErr
		}
	}

	logger.WithFields(logrus.Fields{
		"operation": name,
		"attempts":  cfg.MaxAttempts,
	}).WithError(lastErr).Error("Retry budget exhausted")

	return lastErr
}

// backoffDelay computes the delay before retry number attempt+1. Delays
// grow exponentially, are capped at MaxDelay, then jittered by ±Jitter.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))
	if max := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && delay > max {
		delay = max
	}

	if cfg.Jitter > 0 {
		// Uniform in [delay*(1-jitter), delay*(1+jitter)].
		delay += delay * cfg.Jitter * (2*rand.Float64() - 1)
	}

	return time.Duration(delay)
}
