package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mailwave/platform/telemetry-core-go/pkg/interfaces"
	"github.com/mailwave/platform/telemetry-core-go/pkg/models"
	"github.com/mailwave/platform/telemetry-core-go/pkg/resilience"
)

// DispatcherConfig controls per-channel delivery behavior.
type DispatcherConfig struct {
	Timeout time.Duration
	Retry   resilience.RetryConfig
	Breaker resilience.BreakerConfig
}

// DefaultDispatcherConfig bounds each channel delivery at 10s, with the
// default retry and breaker policies.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Timeout: 10 * time.Second,
		Retry:   resilience.DefaultRetryConfig(),
		Breaker: resilience.DefaultBreakerConfig(),
	}
}

// Dispatcher fans a fired alert out to its configured channels. Delivery
// is fire-and-forget relative to the evaluation loop: failures are logged
// with the alert id and channel type and never raised to the caller.
type Dispatcher struct {
	notifiers map[models.ChannelType]interfaces.Notifier
	config    DispatcherConfig
	logger    *logrus.Logger

	mu       sync.Mutex
	breakers map[models.ChannelType]*resilience.CircuitBreaker
}

// NewDispatcher creates a dispatcher over the given transports.
func NewDispatcher(notifiers []interfaces.Notifier, cfg DispatcherConfig, logger *logrus.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDispatcherConfig().Timeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}

	byType := make(map[models.ChannelType]interfaces.Notifier, len(notifiers))
	for _, n := range notifiers {
		byType[n.Type()] = n
	}

	return &Dispatcher{
		notifiers: byType,
		config:    cfg,
		logger:    logger,
		breakers:  make(map[models.ChannelType]*resilience.CircuitBreaker),
	}
}

// Dispatch attempts delivery on every channel. A failure on one channel
// never prevents attempts on the others.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert, channels []models.Channel) {
	for _, channel := range channels {
		notifier, ok := d.notifiers[channel.Type]
		if !ok {
			d.logger.WithFields(logrus.Fields{
				"alert_id": alert.ID,
				"channel":  channel.Type,
			}).Warn("No transport for channel type, skipping")
			continue
		}

		if err := d.deliver(ctx, notifier, alert, channel); err != nil {
			d.logger.WithError(err).WithFields(logrus.Fields{
				"alert_id": alert.ID,
				"channel":  channel.Type,
			}).Error("Alert notification failed")
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, notifier interfaces.Notifier, alert *models.Alert, channel models.Channel) error {
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	breaker := d.breaker(channel.Type)

	return breaker.Execute(ctx, func(ctx context.Context) error {
		name := fmt.Sprintf("notify:%s", channel.Type)
		return resilience.Retry(ctx, name, func(ctx context.Context) error {
			return notifier.Send(ctx, alert, channel)
		}, d.config.Retry, d.logger)
	})
}

// Breaker returns the circuit breaker guarding one channel type, creating
// it closed on first use.
func (d *Dispatcher) breaker(channelType models.ChannelType) *resilience.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.breakers[channelType]
	if !ok {
		b = resilience.NewCircuitBreaker(fmt.Sprintf("notify:%s", channelType), d.config.Breaker, d.logger)
		d.breakers[channelType] = b
	}

	return b
}

// BreakerSnapshots reports the state of every channel breaker, for
// operator dashboards.
func (d *Dispatcher) BreakerSnapshots() []resilience.BreakerSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshots := make([]resilience.BreakerSnapshot, 0, len(d.breakers))
	for _, b := range d.breakers {
		snapshots = append(snapshots, b.Snapshot())
	}

	return snapshots
}
