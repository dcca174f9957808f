package alerting

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailwave/platform/telemetry-core-go/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeAlertRepo is an in-memory AlertRepository that enforces the
// one-open-alert-per-rule invariant the way the storage layer does.
type fakeAlertRepo struct {
	mu     sync.Mutex
	rules  map[string]*models.AlertRule
	alerts map[string]*models.Alert

	listErr error
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{
		rules:  make(map[string]*models.AlertRule),
		alerts: make(map[string]*models.Alert),
	}
}

func (f *fakeAlertRepo) CreateRule(ctx context.Context, rule *models.AlertRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[rule.ID] = rule
	return nil
}

func (f *fakeAlertRepo) UpdateRule(ctx context.Context, id string, patch models.AlertRulePatch) (*models.AlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[id]
	if !ok {
		return nil, models.ErrRuleNotFound
	}
	if patch.Enabled != nil {
		rule.Enabled = *patch.Enabled
	}
	if patch.Threshold != nil {
		rule.Threshold = *patch.Threshold
	}
	return rule, nil
}

func (f *fakeAlertRepo) DeleteRule(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rules[id]; !ok {
		return models.ErrRuleNotFound
	}
	delete(f.rules, id)
	return nil
}

func (f *fakeAlertRepo) GetRule(ctx context.Context, id string) (*models.AlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[id]
	if !ok {
		return nil, models.ErrRuleNotFound
	}
	return rule, nil
}

func (f *fakeAlertRepo) ListRules(ctx context.Context, enabledOnly bool) ([]*models.AlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var rules []*models.AlertRule
	for _, rule := range f.rules {
		if enabledOnly && !rule.Enabled {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (f *fakeAlertRepo) OpenAlert(ctx context.Context, alert *models.Alert) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.alerts {
		if existing.RuleID == alert.RuleID && !existing.Resolved {
			return false, nil
		}
	}
	stored := *alert
	f.alerts[alert.ID] = &stored
	return true, nil
}

func (f *fakeAlertRepo) ResolveAlert(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	alert, ok := f.alerts[id]
	if !ok {
		return models.ErrAlertNotFound
	}
	if !alert.Resolved {
		alert.Resolved = true
		alert.ResolvedAt = &at
	}
	return nil
}

func (f *fakeAlertRepo) ResolveAlertsForRule(ctx context.Context, ruleID string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var resolved int64
	for _, alert := range f.alerts {
		if alert.RuleID == ruleID && !alert.Resolved {
			alert.Resolved = true
			alert.ResolvedAt = &at
			resolved++
		}
	}
	return resolved, nil
}

func (f *fakeAlertRepo) ListOpenAlerts(ctx context.Context) ([]*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var open []*models.Alert
	for _, alert := range f.alerts {
		if !alert.Resolved {
			open = append(open, alert)
		}
	}
	return open, nil
}

func (f *fakeAlertRepo) openCount(ruleID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, alert := range f.alerts {
		if alert.RuleID == ruleID && !alert.Resolved {
			count++
		}
	}
	return count
}

// fakeMetricSource serves canned values and records the requested windows.
type fakeMetricSource struct {
	errorRate    float64
	avgLatency   float64
	requestCount int64
	aggPoints    []models.AggregatedPoint

	lastStart time.Time
	lastEnd   time.Time
	aggCalls  []models.AggregateQuery
}

func (f *fakeMetricSource) Aggregate(ctx context.Context, query models.AggregateQuery) ([]models.AggregatedPoint, error) {
	f.aggCalls = append(f.aggCalls, query)
	f.lastStart, f.lastEnd = query.Start, query.End
	return f.aggPoints, nil
}

func (f *fakeMetricSource) ErrorRate(ctx context.Context, start, end time.Time) (float64, error) {
	f.lastStart, f.lastEnd = start, end
	return f.errorRate, nil
}

func (f *fakeMetricSource) AverageLatency(ctx context.Context, start, end time.Time) (float64, error) {
	f.lastStart, f.lastEnd = start, end
	return f.avgLatency, nil
}

func (f *fakeMetricSource) RequestCount(ctx context.Context, start, end time.Time) (int64, error) {
	f.lastStart, f.lastEnd = start, end
	return f.requestCount, nil
}

// fakeAlertNotifier records dispatched alerts.
type fakeAlertNotifier struct {
	mu       sync.Mutex
	alerts   []*models.Alert
	channels [][]models.Channel
}

func (f *fakeAlertNotifier) Dispatch(ctx context.Context, alert *models.Alert, channels []models.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	f.channels = append(f.channels, channels)
}

func (f *fakeAlertNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

func errorRateRule() *models.AlertRule {
	return &models.AlertRule{
		ID:            "rule-error-rate",
		Name:          "High error rate",
		Metric:        "performance:error_rate",
		Condition:     models.ConditionGreaterThan,
		Threshold:     0.05,
		WindowMinutes: 5,
		Severity:      models.AlertSeverityHigh,
		Enabled:       true,
		Channels: []models.Channel{
			{Type: models.ChannelWebhook, Config: map[string]string{"url": "https://example.com/hook"}},
		},
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeAlertRepo, *fakeMetricSource, *fakeAlertNotifier) {
	t.Helper()

	repo := newFakeAlertRepo()
	source := &fakeMetricSource{}
	notifier := &fakeAlertNotifier{}
	engine := NewEngine(repo, source, notifier, DefaultEngineConfig(), testLogger())

	return engine, repo, source, notifier
}

func TestEngineFiresAlertWhenConditionMet(t *testing.T) {
	engine, repo, source, notifier := newTestEngine(t)
	ctx := context.Background()

	rule := errorRateRule()
	require.NoError(t, repo.CreateRule(ctx, rule))
	source.errorRate = 0.12

	engine.EvaluateOnce(ctx)
	engine.wg.Wait()

	require.Equal(t, 1, repo.openCount(rule.ID))
	require.Equal(t, 1, notifier.count())

	alert := notifier.alerts[0]
	assert.Equal(t, rule.ID, alert.RuleID)
	assert.Equal(t, models.AlertSeverityHigh, alert.Severity)
	assert.Contains(t, alert.Message, "performance:error_rate")
	assert.Equal(t, 0.12, alert.Metadata["value"])
	assert.Equal(t, 0.05, alert.Metadata["threshold"])
	assert.Len(t, notifier.channels[0], 1)
}

func TestEngineFiringIsIdempotentWhileConditionHolds(t *testing.T) {
	engine, repo, source, notifier := newTestEngine(t)
	ctx := context.Background()

	rule := errorRateRule()
	require.NoError(t, repo.CreateRule(ctx, rule))
	source.errorRate = 0.12

	engine.EvaluateOnce(ctx)
	engine.EvaluateOnce(ctx)
	engine.EvaluateOnce(ctx)
	engine.wg.Wait()

	assert.Equal(t, 1, repo.openCount(rule.ID), "at most one open alert per rule")
	assert.Equal(t, 1, notifier.count(), "notifications only on the open transition")
}

func TestEngineAutoResolvesWhenConditionClears(t *testing.T) {
	engine, repo, source, notifier := newTestEngine(t)
	ctx := context.Background()

	rule := errorRateRule()
	require.NoError(t, repo.CreateRule(ctx, rule))

	source.errorRate = 0.12
	engine.EvaluateOnce(ctx)
	require.Equal(t, 1, repo.openCount(rule.ID))

	source.errorRate = 0.01
	engine.EvaluateOnce(ctx)
	assert.Equal(t, 0, repo.openCount(rule.ID), "recovery resolves the open alert")

	// A later breach opens a fresh alert and notifies again.
	source.errorRate = 0.2
	engine.EvaluateOnce(ctx)
	engine.wg.Wait()
	assert.Equal(t, 1, repo.openCount(rule.ID))
	assert.Equal(t, 2, notifier.count())
}

func TestEngineThresholdEqualityDoesNotFire(t *testing.T) {
	engine, repo, source, _ := newTestEngine(t)
	ctx := context.Background()

	rule := errorRateRule()
	require.NoError(t, repo.CreateRule(ctx, rule))
	source.errorRate = 0.05

	engine.EvaluateOnce(ctx)

	assert.Equal(t, 0, repo.openCount(rule.ID), "greater-than is strict")
}

func TestEngineSkipsDisabledRules(t *testing.T) {
	engine, repo, source, _ := newTestEngine(t)
	ctx := context.Background()

	rule := errorRateRule()
	rule.Enabled = false
	require.NoError(t, repo.CreateRule(ctx, rule))
	source.errorRate = 0.5

	engine.EvaluateOnce(ctx)

	assert.Equal(t, 0, repo.openCount(rule.ID))
}

func TestEngineOneBadRuleDoesNotHaltOthers(t *testing.T) {
	engine, repo, source, _ := newTestEngine(t)
	ctx := context.Background()

	bad := errorRateRule()
	bad.ID = "rule-bad"
	bad.Metric = "unknown:namespace"
	require.NoError(t, repo.CreateRule(ctx, bad))

	good := errorRateRule()
	require.NoError(t, repo.CreateRule(ctx, good))
	source.errorRate = 0.12

	engine.EvaluateOnce(ctx)
	engine.wg.Wait()

	assert.Equal(t, 0, repo.openCount(bad.ID))
	assert.Equal(t, 1, repo.openCount(good.ID))
}

func TestEngineEvaluatesTrailingWindow(t *testing.T) {
	engine, repo, source, _ := newTestEngine(t)
	ctx := context.Background()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	engine.nowFn = func() time.Time { return now }

	require.NoError(t, repo.CreateRule(ctx, errorRateRule()))
	engine.EvaluateOnce(ctx)

	assert.Equal(t, now, source.lastEnd)
	assert.Equal(t, now.Add(-5*time.Minute), source.lastStart)
}

func TestEngineMetricValueRouting(t *testing.T) {
	engine, _, source, _ := newTestEngine(t)
	ctx := context.Background()

	source.avgLatency = 850
	source.requestCount = 1200
	source.aggPoints = []models.AggregatedPoint{{Value: 10}, {Value: 20}, {Value: 30}}

	rule := errorRateRule()

	rule.Metric = "performance:avg_latency"
	value, err := engine.metricValue(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, 850.0, value)

	rule.Metric = "performance:request_count"
	value, err = engine.metricValue(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, 1200.0, value)

	// Business metrics sum over the window.
	rule.Metric = "business:emails_sent"
	value, err = engine.metricValue(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, 60.0, value)
	require.NotEmpty(t, source.aggCalls)
	assert.Equal(t, models.AggregateSum, source.aggCalls[len(source.aggCalls)-1].Op)

	// Generic metrics average over the window.
	rule.Metric = "metric:queue_depth"
	value, err = engine.metricValue(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, 20.0, value)
	assert.Equal(t, models.AggregateAvg, source.aggCalls[len(source.aggCalls)-1].Op)

	rule.Metric = "unknown:thing"
	_, err = engine.metricValue(ctx, rule)
	assert.Error(t, err)
}

func TestEngineSystemProbes(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	rule := errorRateRule()

	// The default memory probe reports a ratio in [0, 1].
	rule.Metric = "system:memory_ratio"
	value, err := engine.metricValue(ctx, rule)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, value, 0.0)
	assert.LessOrEqual(t, value, 1.0)

	engine.RegisterSystemProbe("system:goroutines", func() (float64, error) {
		return 42, nil
	})
	rule.Metric = "system:goroutines"
	value, err = engine.metricValue(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, 42.0, value)

	rule.Metric = "system:disk_usage"
	_, err = engine.metricValue(ctx, rule)
	assert.Error(t, err, "unregistered system metrics are an evaluation error")

	probeErr := errors.New("probe exploded")
	engine.RegisterSystemProbe("system:broken", func() (float64, error) {
		return 0, probeErr
	})
	rule.Metric = "system:broken"
	_, err = engine.metricValue(ctx, rule)
	assert.ErrorIs(t, err, probeErr)
}

func TestEngineNoDispatchWithoutChannels(t *testing.T) {
	engine, repo, source, notifier := newTestEngine(t)
	ctx := context.Background()

	rule := errorRateRule()
	rule.Channels = nil
	require.NoError(t, repo.CreateRule(ctx, rule))
	source.errorRate = 0.5

	engine.EvaluateOnce(ctx)
	engine.wg.Wait()

	assert.Equal(t, 1, repo.openCount(rule.ID))
	assert.Equal(t, 0, notifier.count())
}

func TestEngineManualResolve(t *testing.T) {
	engine, repo, source, _ := newTestEngine(t)
	ctx := context.Background()

	rule := errorRateRule()
	require.NoError(t, repo.CreateRule(ctx, rule))
	source.errorRate = 0.5
	engine.EvaluateOnce(ctx)
	engine.wg.Wait()

	open, err := repo.ListOpenAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, engine.ResolveAlert(ctx, open[0].ID))
	assert.Equal(t, 0, repo.openCount(rule.ID))

	// Resolving again is a no-op.
	require.NoError(t, engine.ResolveAlert(ctx, open[0].ID))

	assert.ErrorIs(t, engine.ResolveAlert(ctx, "missing"), models.ErrAlertNotFound)
}
