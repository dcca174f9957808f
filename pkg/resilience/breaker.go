package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// BreakerState is the circuit state of one named dependency.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// ErrCircuitOpen is returned when a call is rejected because the circuit
// is open. Callers can match it with errors.Is.
var ErrCircuitOpen = errors.New("circuit open")

// OpenError reports how long until the circuit will admit a trial call.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit %s open, retry after %s", e.Name, e.RetryAfter.Round(time.Second))
}

func (e *OpenError) Unwrap() error { return ErrCircuitOpen }

// BreakerConfig controls circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold    int
	RecoveryTimeout     time.Duration
	HalfOpenMaxAttempts int
}

// DefaultBreakerConfig opens after 10 retryable failures, cools down for
// two minutes and admits three trial calls.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:    10,
		RecoveryTimeout:     2 * time.Minute,
		HalfOpenMaxAttempts: 3,
	}
}

// BreakerSnapshot is a point-in-time view of breaker state.
type BreakerSnapshot struct {
	Name             string       `json:"name"`
	State            BreakerState `json:"state"`
	FailureCount     int          `json:"failure_count"`
	LastFailureAt    time.Time    `json:"last_failure_at"`
	HalfOpenAttempts int          `json:"half_open_attempts"`
}

// CircuitBreaker protects calls to one named external dependency. State
// is process-lifetime only and never persisted.
type CircuitBreaker struct {
	name   string
	config BreakerConfig
	logger *logrus.Logger

	mu               sync.Mutex
	state            BreakerState
	failureCount     int
	lastFailureAt    time.Time
	openedAt         time.Time
	halfOpenAttempts int

	nowFn func() time.Time
}

// NewCircuitBreaker creates a closed breaker for the named dependency.
func NewCircuitBreaker(name string, cfg BreakerConfig, logger *logrus.Logger) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultBreakerConfig().RecoveryTimeout
	}
	if cfg.HalfOpenMaxAttempts <= 0 {
		cfg.HalfOpenMaxAttempts = DefaultBreakerConfig().HalfOpenMaxAttempts
	}

	return &CircuitBreaker{
		name:   name,
		config: cfg,
		logger: logger,
		state:  StateClosed,
		nowFn:  time.Now,
	}
}

// Execute runs op through the breaker. When the circuit is open the call
// fails immediately without invoking op. While closed, auth and
// client-error failures pass through without counting against the
// circuit; in half-open, any failed trial re-opens it.
func (b *CircuitBreaker) Execute(ctx context.Context, op Operation) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := op(ctx)
	b.record(err)

	return err
}

func (b *CircuitBreaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		elapsed := b.nowFn().Sub(b.openedAt)
		if elapsed < b.config.RecoveryTimeout {
			return &OpenError{Name: b.name, RetryAfter: b.config.RecoveryTimeout - elapsed}
		}
		b.transition(StateHalfOpen)
		b.halfOpenAttempts = 1
		return nil
	case StateHalfOpen:
		if b.halfOpenAttempts >= b.config.HalfOpenMaxAttempts {
			return &OpenError{Name: b.name, RetryAfter: b.config.RecoveryTimeout}
		}
		b.halfOpenAttempts++
		return nil
	default:
		return nil
	}
}

func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state != StateClosed {
			b.transition(StateClosed)
		}
		b.failureCount = 0
		b.halfOpenAttempts = 0
		return
	}

	if b.state == StateHalfOpen {
		// A failed trial has not proven recovery, whatever its class.
		// Letting non-retryable failures pass here would burn the trial
		// budget and strand the breaker in half-open forever.
		b.failureCount++
		b.lastFailureAt = b.nowFn()
		b.openedAt = b.nowFn()
		b.transition(StateOpen)
		return
	}

	if !Classify(err).Retryable() {
		// Permanent caller errors say nothing about dependency health.
		return
	}

	b.failureCount++
	b.lastFailureAt = b.nowFn()

	if b.state == StateClosed && b.failureCount >= b.config.FailureThreshold {
		b.openedAt = b.nowFn()
		b.transition(StateOpen)
	}
}

func (b *CircuitBreaker) transition(next BreakerState) {
	if b.state == next {
		return
	}

	b.logger.WithFields(logrus.Fields{
		"breaker":       b.name,
		"from":          b.state,
		"to":            next,
		"failure_count": b.failureCount,
	}).Warn("Circuit breaker state change")

	b.state = next
}

// Reset forces the breaker closed with a clean failure count. Used for
// operator recovery and tests.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transition(StateClosed)
	b.failureCount = 0
	b.halfOpenAttempts = 0
}

// State returns the current circuit state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Snapshot returns a point-in-time view of the breaker.
func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerSnapshot{
		Name:             b.name,
		State:            b.state,
		FailureCount:     b.failureCount,
		LastFailureAt:    b.lastFailureAt,
		HalfOpenAttempts: b.halfOpenAttempts,
	}
}
