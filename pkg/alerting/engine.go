package alerting

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mailwave/platform/telemetry-core-go/pkg/interfaces"
	"github.com/mailwave/platform/telemetry-core-go/pkg/models"
)

// MetricSource is the read surface the engine evaluates rules against.
// The metric store satisfies this.
type MetricSource interface {
	Aggregate(ctx context.Context, query models.AggregateQuery) ([]models.AggregatedPoint, error)
	ErrorRate(ctx context.Context, start, end time.Time) (float64, error)
	AverageLatency(ctx context.Context, start, end time.Time) (float64, error)
	RequestCount(ctx context.Context, start, end time.Time) (int64, error)
}

// AlertNotifier hands fired alerts to the notification path. The
// dispatcher satisfies this.
type AlertNotifier interface {
	Dispatch(ctx context.Context, alert *models.Alert, channels []models.Channel)
}

// SystemProbe reads one system metric directly from the runtime.
type SystemProbe func() (float64, error)

// EngineConfig controls the evaluation loop.
type EngineConfig struct {
	EvaluationInterval time.Duration
	DispatchTimeout    time.Duration
}

// DefaultEngineConfig evaluates every rule once a minute.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		EvaluationInterval: time.Minute,
		DispatchTimeout:    30 * time.Second,
	}
}

// Engine runs the periodic rule evaluation loop and drives the alert
// lifecycle. Open/resolve transitions for a rule are serialized by the
// single loop; across processes the storage-level conditional insert
// keeps at most one open alert per rule.
type Engine struct {
	alerts     interfaces.AlertRepository
	metrics    MetricSource
	dispatcher AlertNotifier
	logger     *logrus.Logger
	config     EngineConfig

	probes map[string]SystemProbe
	nowFn  func() time.Time

	stopFn context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an evaluation engine. System metrics get the default
// memory probe; more can be registered before Start.
func NewEngine(alerts interfaces.AlertRepository, metrics MetricSource, dispatcher AlertNotifier, cfg EngineConfig, logger *logrus.Logger) *Engine {
	if cfg.EvaluationInterval <= 0 {
		cfg.EvaluationInterval = DefaultEngineConfig().EvaluationInterval
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultEngineConfig().DispatchTimeout
	}

	return &Engine{
		alerts:     alerts,
		metrics:    metrics,
		dispatcher: dispatcher,
		logger:     logger,
		config:     cfg,
		probes: map[string]SystemProbe{
			"system:memory_ratio": memoryRatioProbe,
		},
		nowFn: time.Now,
	}
}

// RegisterSystemProbe adds or replaces a system metric probe. Not safe to
// call after Start.
func (e *Engine) RegisterSystemProbe(metric string, probe SystemProbe) {
	e.probes[metric] = probe
}

// Start launches the evaluation loop. It stops when ctx is canceled or
// Stop is called.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.stopFn = cancel

	e.wg.Add(1)
	go e.run(ctx)

	e.logger.WithField("interval", e.config.EvaluationInterval).Info("Alert engine started")
}

// Stop cancels the evaluation loop and waits for it to exit.
func (e *Engine) Stop() {
	if e.stopFn != nil {
		e.stopFn()
	}
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.EvaluationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.EvaluateOnce(ctx)
		}
	}
}

// EvaluateOnce runs a single evaluation tick over every enabled rule.
// A failure evaluating one rule is logged and the loop proceeds to the
// next; one bad rule never halts the others.
func (e *Engine) EvaluateOnce(ctx context.Context) {
	rules, err := e.alerts.ListRules(ctx, true)
	if err != nil {
		e.logger.WithError(err).Error("Failed to list alert rules")
		return
	}

	for _, rule := range rules {
		if err := e.evaluateRule(ctx, rule); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"rule_id": rule.ID,
				"metric":  rule.Metric,
			}).Error("Rule evaluation failed")
		}
	}
}

func (e *Engine) evaluateRule(ctx context.Context, rule *models.AlertRule) error {
	value, err := e.metricValue(ctx, rule)
	if err != nil {
		return err
	}

	now := e.nowFn()

	if !rule.Condition.Met(value, rule.Threshold) {
		resolved, err := e.alerts.ResolveAlertsForRule(ctx, rule.ID, now)
		if err != nil {
			return fmt.Errorf("failed to auto-resolve alerts: %w", err)
		}
		if resolved > 0 {
			e.logger.WithFields(logrus.Fields{
				"rule_id": rule.ID,
				"metric":  rule.Metric,
				"value":   value,
			}).Info("Alert condition cleared")
		}
		return nil
	}

	alert := &models.Alert{
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		Message:   fmt.Sprintf("%s: %s is %.4f (threshold %.4f)", rule.Name, rule.Metric, value, rule.Threshold),
		Severity:  rule.Severity,
		Timestamp: now,
		Metadata: map[string]interface{}{
			"metric":         rule.Metric,
			"value":          value,
			"threshold":      rule.Threshold,
			"condition":      string(rule.Condition),
			"window_minutes": rule.WindowMinutes,
		},
	}

	created, err := e.alerts.OpenAlert(ctx, alert)
	if err != nil {
		return fmt.Errorf("failed to open alert: %w", err)
	}
	if !created {
		// Condition still met, alert already open: idempotent firing.
		return nil
	}

	e.logger.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"rule_id":  rule.ID,
		"value":    value,
		"severity": rule.Severity,
	}).Warn("Alert fired")

	if e.dispatcher != nil && len(rule.Channels) > 0 {
		// Detach dispatch from the tick so a hung transport cannot
		// stall evaluation of the remaining rules.
		channels := rule.Channels
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			dispatchCtx, cancel := context.WithTimeout(context.Background(), e.config.DispatchTimeout)
			defer cancel()
			e.dispatcher.Dispatch(dispatchCtx, alert, channels)
		}()
	}

	return nil
}

// metricValue computes the rule's current metric value over the trailing
// window, routed by metric namespace.
func (e *Engine) metricValue(ctx context.Context, rule *models.AlertRule) (float64, error) {
	end := e.nowFn()
	start := end.Add(-time.Duration(rule.WindowMinutes) * time.Minute)

	switch {
	case rule.Metric == "performance:error_rate":
		return e.metrics.ErrorRate(ctx, start, end)

	case rule.Metric == "performance:avg_latency":
		return e.metrics.AverageLatency(ctx, start, end)

	case rule.Metric == "performance:request_count":
		count, err := e.metrics.RequestCount(ctx, start, end)
		return float64(count), err

	case strings.HasPrefix(rule.Metric, "business:"):
		points, err := e.metrics.Aggregate(ctx, models.AggregateQuery{
			Name:   rule.Metric,
			Start:  start,
			End:    end,
			Op:     models.AggregateSum,
			Bucket: models.Bucket1m,
		})
		if err != nil {
			return 0, err
		}
		var total float64
		for _, p := range points {
			total += p.Value
		}
		return total, nil

	case strings.HasPrefix(rule.Metric, "system:"):
		probe, ok := e.probes[rule.Metric]
		if !ok {
			return 0, fmt.Errorf("no probe registered for system metric %q", rule.Metric)
		}
		return probe()

	case strings.HasPrefix(rule.Metric, "metric:"):
		points, err := e.metrics.Aggregate(ctx, models.AggregateQuery{
			Name:   rule.Metric,
			Start:  start,
			End:    end,
			Op:     models.AggregateAvg,
			Bucket: models.Bucket1m,
		})
		if err != nil {
			return 0, err
		}
		if len(points) == 0 {
			return 0, nil
		}
		var total float64
		for _, p := range points {
			total += p.Value
		}
		return total / float64(len(points)), nil

	default:
		return 0, fmt.Errorf("unknown metric namespace: %q", rule.Metric)
	}
}

// memoryRatioProbe reports heap in use over total memory obtained from
// the OS.
func memoryRatioProbe() (float64, error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	if stats.Sys == 0 {
		return 0, nil
	}

	return float64(stats.HeapAlloc) / float64(stats.Sys), nil
}

// ResolveAlert resolves one alert by id on operator request. Resolving an
// already-resolved alert is a no-op.
func (e *Engine) ResolveAlert(ctx context.Context, id string) error {
	return e.alerts.ResolveAlert(ctx, id, e.nowFn())
}
