package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mailwave/platform/telemetry-core-go/pkg/interfaces"
	"github.com/mailwave/platform/telemetry-core-go/pkg/models"
)

// EventSink receives the suspicious-activity signal. The metric store
// satisfies this, so signals flow through the same alerting path as any
// other error event.
type EventSink interface {
	RecordError(ctx context.Context, event *models.ErrorEvent)
}

// DetectorConfig controls the sliding-window thresholds.
type DetectorConfig struct {
	AuthFailureThreshold int
	AuthFailureWindow    time.Duration
	SignupStartThreshold int
	SignupStartWindow    time.Duration
}

// DefaultDetectorConfig flags five failed logins from one address within
// 15 minutes, and fifty signup starts from one source within an hour.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		AuthFailureThreshold: 5,
		AuthFailureWindow:    15 * time.Minute,
		SignupStartThreshold: 50,
		SignupStartWindow:    time.Hour,
	}
}

// Detector spots bursts of suspicious events using TTL-scoped counters in
// the external cache. It keeps no local state, so any process in a
// horizontally scaled deployment can observe and trip the same threshold.
type Detector struct {
	counters interfaces.CounterRepository
	sink     EventSink
	logger   *logrus.Logger
	config   DetectorConfig
}

// NewDetector creates a detector over the shared counter cache.
func NewDetector(counters interfaces.CounterRepository, sink EventSink, cfg DetectorConfig, logger *logrus.Logger) *Detector {
	if cfg.AuthFailureThreshold <= 0 {
		cfg.AuthFailureThreshold = DefaultDetectorConfig().AuthFailureThreshold
	}
	if cfg.AuthFailureWindow <= 0 {
		cfg.AuthFailureWindow = DefaultDetectorConfig().AuthFailureWindow
	}
	if cfg.SignupStartThreshold <= 0 {
		cfg.SignupStartThreshold = DefaultDetectorConfig().SignupStartThreshold
	}
	if cfg.SignupStartWindow <= 0 {
		cfg.SignupStartWindow = DefaultDetectorConfig().SignupStartWindow
	}

	return &Detector{
		counters: counters,
		sink:     sink,
		logger:   logger,
		config:   cfg,
	}
}

// ObserveAuthFailure counts one failed login from the originating
// address. Crossing the threshold emits exactly one suspicious-activity
// signal per window: the signal fires when the count lands on the
// threshold and stays quiet for every increment above it.
func (d *Detector) ObserveAuthFailure(ctx context.Context, address string) {
	key := fmt.Sprintf("auth:failures:%s", address)

	count, err := d.counters.Increment(ctx, key, 1, d.config.AuthFailureWindow)
	if err != nil {
		d.logger.WithError(err).WithField("address", address).Warn("Failed to count auth failure")
		return
	}

	if count != int64(d.config.AuthFailureThreshold) {
		return
	}

	d.logger.WithFields(logrus.Fields{
		"address": address,
		"count":   count,
		"window":  d.config.AuthFailureWindow,
	}).Warn("Suspicious activity: repeated authentication failures")

	d.sink.RecordError(ctx, &models.ErrorEvent{
		ID:       uuid.NewString(),
		Message:  fmt.Sprintf("suspicious activity: %d failed logins from %s", count, address),
		Severity: models.ErrorSeverityError,
		Metadata: map[string]interface{}{
			"signal":  "suspicious_activity",
			"address": address,
			"count":   count,
		},
	})
}

// ObserveSignupStart counts one signup start from a source. The counter
// key and window are independent of the auth-failure check.
func (d *Detector) ObserveSignupStart(ctx context.Context, source string) {
	key := fmt.Sprintf("signups:start:%s", source)

	count, err := d.counters.Increment(ctx, key, 1, d.config.SignupStartWindow)
	if err != nil {
		d.logger.WithError(err).WithField("source", source).Warn("Failed to count signup start")
		return
	}

	if count != int64(d.config.SignupStartThreshold) {
		return
	}

	d.logger.WithFields(logrus.Fields{
		"source": source,
		"count":  count,
		"window": d.config.SignupStartWindow,
	}).Warn("Signup volume threshold crossed")

	d.sink.RecordError(ctx, &models.ErrorEvent{
		ID:       uuid.NewString(),
		Message:  fmt.Sprintf("signup volume threshold crossed: %d starts from %s", count, source),
		Severity: models.ErrorSeverityWarn,
		Metadata: map[string]interface{}{
			"signal": "signup_volume",
			"source": source,
			"count":  count,
		},
	})
}
