package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mailwave/platform/telemetry-core-go/internal/config"
	"github.com/mailwave/platform/telemetry-core-go/internal/notify"
	postgresImpl "github.com/mailwave/platform/telemetry-core-go/internal/postgres"
	redisImpl "github.com/mailwave/platform/telemetry-core-go/internal/redis"
	"github.com/mailwave/platform/telemetry-core-go/pkg/alerting"
	"github.com/mailwave/platform/telemetry-core-go/pkg/anomaly"
	"github.com/mailwave/platform/telemetry-core-go/pkg/interfaces"
	"github.com/mailwave/platform/telemetry-core-go/pkg/models"
	"github.com/mailwave/platform/telemetry-core-go/pkg/telemetry"
)

// TelemetryAdapter implements TelemetryCore. It owns the PostgreSQL and
// Redis connections and wires the metric store, counters, anomaly
// detector, alert engine and notification dispatcher together with
// explicit dependency injection, so tests can build isolated instances.
type TelemetryAdapter struct {
	// Database connections
	postgresDB  *sql.DB
	redisClient *redis.Client

	// Repository implementations
	metrics  interfaces.MetricRepository
	alerts   interfaces.AlertRepository
	counters interfaces.CounterRepository

	// Core components
	store      *telemetry.MetricStore
	detector   *anomaly.Detector
	engine     *alerting.Engine
	dispatcher *alerting.Dispatcher

	// Configuration and logging
	config *config.CoreConfig
	logger *logrus.Logger

	// Connection state
	connected bool
	started   bool
}

var _ TelemetryCore = (*TelemetryAdapter)(nil)

// NewTelemetryAdapter creates a new telemetry core adapter.
func NewTelemetryAdapter(cfg *config.CoreConfig, logger *logrus.Logger) (*TelemetryAdapter, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &TelemetryAdapter{
		config: cfg,
		logger: logger,
	}, nil
}

// Connect establishes connections to all data sources and builds the
// core components. Background loops start only with Start.
func (a *TelemetryAdapter) Connect(ctx context.Context) error {
	if a.connected {
		return nil
	}

	if err := a.connectPostgreSQL(ctx); err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := a.connectRedis(ctx); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	a.initializeComponents()

	a.connected = true
	a.logger.Info("Telemetry core connected to all data sources")

	return nil
}

// Disconnect stops background loops and closes all connections.
func (a *TelemetryAdapter) Disconnect(ctx context.Context) error {
	if !a.connected {
		return nil
	}

	a.Stop()

	var errs []error

	if a.postgresDB != nil {
		if err := a.postgresDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close PostgreSQL: %w", err))
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	a.connected = false

	if len(errs) > 0 {
		return fmt.Errorf("errors during disconnect: %v", errs)
	}

	a.logger.Info("Telemetry core disconnected from all data sources")
	return nil
}

// Health checks the health of all data sources.
func (a *TelemetryAdapter) Health(ctx context.Context) error {
	if !a.connected {
		return fmt.Errorf("telemetry core not connected")
	}

	if err := a.postgresDB.PingContext(ctx); err != nil {
		return fmt.Errorf("PostgreSQL health check failed: %w", err)
	}

	if err := a.counters.Ping(ctx); err != nil {
		return fmt.Errorf("Redis health check failed: %w", err)
	}

	return nil
}

// Start launches the flush, retention and evaluation loops.
func (a *TelemetryAdapter) Start(ctx context.Context) error {
	if !a.connected {
		return fmt.Errorf("telemetry core not connected")
	}
	if a.started {
		return nil
	}

	a.store.Start(ctx)
	a.engine.Start(ctx)
	a.started = true

	return nil
}

// Stop cancels the background loops and waits for them to drain.
func (a *TelemetryAdapter) Stop() {
	if !a.started {
		return
	}

	a.engine.Stop()
	a.store.Stop()
	a.started = false
}

// Event recording

func (a *TelemetryAdapter) RecordPerformance(ctx context.Context, event *models.PerformanceEvent) {
	a.store.RecordPerformance(ctx, event)
}

func (a *TelemetryAdapter) RecordBusiness(ctx context.Context, event *models.BusinessEvent) {
	a.store.RecordBusiness(ctx, event)
}

func (a *TelemetryAdapter) RecordError(ctx context.Context, event *models.ErrorEvent) {
	a.store.RecordError(ctx, event)
}

func (a *TelemetryAdapter) RecordPoint(ctx context.Context, point *models.MetricPoint) {
	a.store.RecordPoint(ctx, point)
}

// Anomaly observation

func (a *TelemetryAdapter) ObserveAuthFailure(ctx context.Context, address string) {
	a.detector.ObserveAuthFailure(ctx, address)
}

func (a *TelemetryAdapter) ObserveSignupStart(ctx context.Context, source string) {
	a.detector.ObserveSignupStart(ctx, source)
}

// Metric reads

func (a *TelemetryAdapter) GetMetrics(ctx context.Context, query models.MetricQuery) ([]*models.MetricPoint, error) {
	return a.store.Query(ctx, query)
}

func (a *TelemetryAdapter) GetAggregated(ctx context.Context, query models.AggregateQuery) ([]models.AggregatedPoint, error) {
	return a.store.Aggregate(ctx, query)
}

func (a *TelemetryAdapter) GetErrorRate(ctx context.Context, start, end time.Time) (float64, error) {
	return a.store.ErrorRate(ctx, start, end)
}

func (a *TelemetryAdapter) GetAverageLatency(ctx context.Context, start, end time.Time) (float64, error) {
	return a.store.AverageLatency(ctx, start, end)
}

func (a *TelemetryAdapter) GetBusinessSummary(ctx context.Context, start, end time.Time, tenantID string) (map[string]float64, error) {
	return a.store.BusinessSummary(ctx, start, end, tenantID)
}

// Alert rule management

func (a *TelemetryAdapter) CreateAlertRule(ctx context.Context, rule *models.AlertRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return a.alerts.CreateRule(ctx, rule)
}

func (a *TelemetryAdapter) UpdateAlertRule(ctx context.Context, id string, patch models.AlertRulePatch) (*models.AlertRule, error) {
	if patch.Condition != nil && !patch.Condition.IsValid() {
		return nil, fmt.Errorf("invalid alert condition: %q", *patch.Condition)
	}
	if patch.Severity != nil && !patch.Severity.IsValid() {
		return nil, fmt.Errorf("invalid alert severity: %q", *patch.Severity)
	}
	return a.alerts.UpdateRule(ctx, id, patch)
}

func (a *TelemetryAdapter) DeleteAlertRule(ctx context.Context, id string) error {
	return a.alerts.DeleteRule(ctx, id)
}

func (a *TelemetryAdapter) GetAlertRule(ctx context.Context, id string) (*models.AlertRule, error) {
	return a.alerts.GetRule(ctx, id)
}

func (a *TelemetryAdapter) ListAlertRules(ctx context.Context, enabledOnly bool) ([]*models.AlertRule, error) {
	return a.alerts.ListRules(ctx, enabledOnly)
}

func (a *TelemetryAdapter) ImportAlertRules(ctx context.Context, r io.Reader) (int, error) {
	return a.engine.ImportRules(ctx, r)
}

// Alert lifecycle

func (a *TelemetryAdapter) GetActiveAlerts(ctx context.Context) ([]*models.Alert, error) {
	return a.alerts.ListOpenAlerts(ctx)
}

func (a *TelemetryAdapter) ResolveAlert(ctx context.Context, id string) error {
	return a.engine.ResolveAlert(ctx, id)
}

// EvaluateAlertsOnce runs one evaluation tick synchronously, for tests
// and operator tooling.
func (a *TelemetryAdapter) EvaluateAlertsOnce(ctx context.Context) {
	a.engine.EvaluateOnce(ctx)
}

// FlushMetrics drains the metric buffer synchronously.
func (a *TelemetryAdapter) FlushMetrics(ctx context.Context) error {
	return a.store.Flush(ctx)
}

// Private helper methods

func (a *TelemetryAdapter) connectPostgreSQL(ctx context.Context) error {
	db, err := sql.Open("postgres", a.config.PostgresURL)
	if err != nil {
		return fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(a.config.MaxConnections)
	db.SetMaxIdleConns(a.config.MaxIdleConnections)
	db.SetConnMaxLifetime(a.config.IdleTimeout)

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	a.postgresDB = db
	a.logger.Info("Connected to PostgreSQL")

	return nil
}

func (a *TelemetryAdapter) connectRedis(ctx context.Context) error {
	opt, err := redis.ParseURL(a.config.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	opt.PoolSize = a.config.MaxConnections
	opt.MinIdleConns = a.config.MaxIdleConnections
	opt.DialTimeout = a.config.ConnectionTimeout
	opt.ReadTimeout = a.config.ConnectionTimeout
	opt.WriteTimeout = a.config.ConnectionTimeout

	client := redis.NewClient(opt)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	a.redisClient = client
	a.logger.Info("Connected to Redis")

	return nil
}

func (a *TelemetryAdapter) initializeComponents() {
	a.metrics = postgresImpl.NewMetricRepository(a.postgresDB, a.logger, a.config)
	a.alerts = postgresImpl.NewAlertRepository(a.postgresDB, a.logger, a.config)
	a.counters = redisImpl.NewCounterRepository(a.redisClient, a.logger, a.config)

	counters := telemetry.NewCounters(a.counters, a.config.CounterTTL, a.logger)

	a.store = telemetry.NewMetricStore(a.metrics, counters, telemetry.StoreConfig{
		FlushInterval:        a.config.FlushInterval,
		FlushHighWater:       a.config.FlushHighWater,
		Retention:            a.config.Retention,
		SweepInterval:        a.config.RetentionSweepInterval,
		SlowRequestThreshold: a.config.SlowRequestThreshold,
	}, a.logger)

	a.detector = anomaly.NewDetector(a.counters, a.store, anomaly.DetectorConfig{
		AuthFailureThreshold: a.config.AuthFailureThreshold,
		AuthFailureWindow:    a.config.AuthFailureWindow,
		SignupStartThreshold: a.config.SignupStartThreshold,
		SignupStartWindow:    a.config.SignupStartWindow,
	}, a.logger)

	httpClient := &http.Client{Timeout: a.config.NotifyTimeout}
	notifiers := []interfaces.Notifier{
		notify.NewEmailNotifier(notify.SMTPConfig{
			Host:     a.config.SMTPHost,
			Port:     a.config.SMTPPort,
			Username: a.config.SMTPUsername,
			Password: a.config.SMTPPassword,
			From:     a.config.SMTPFrom,
		}, a.logger),
		notify.NewWebhookNotifier(httpClient, a.logger),
		notify.NewChatNotifier(httpClient, a.logger),
	}

	dispatcherCfg := alerting.DefaultDispatcherConfig()
	dispatcherCfg.Timeout = a.config.NotifyTimeout
	a.dispatcher = alerting.NewDispatcher(notifiers, dispatcherCfg, a.logger)

	engineCfg := alerting.DefaultEngineConfig()
	engineCfg.EvaluationInterval = a.config.EvaluationInterval
	a.engine = alerting.NewEngine(a.alerts, a.store, a.dispatcher, engineCfg, a.logger)

	a.logger.Info("Initialized all telemetry core components")
}
