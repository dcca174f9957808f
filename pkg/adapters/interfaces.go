package adapters

import (
	"context"
	"io"
	"time"

	"github.com/mailwave/platform/telemetry-core-go/pkg/models"
)

// TelemetryCore is the surface the rest of the platform consumes:
// recording telemetry, reading metrics, and managing alert rules. Record
// and observe calls never return errors to the caller; recording
// telemetry must never fail the request it instruments.
type TelemetryCore interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Health(ctx context.Context) error
	Start(ctx context.Context) error
	Stop()

	// Event recording (buffered, non-blocking)
	RecordPerformance(ctx context.Context, event *models.PerformanceEvent)
	RecordBusiness(ctx context.Context, event *models.BusinessEvent)
	RecordError(ctx context.Context, event *models.ErrorEvent)
	RecordPoint(ctx context.Context, point *models.MetricPoint)

	// Anomaly observation
	ObserveAuthFailure(ctx context.Context, address string)
	ObserveSignupStart(ctx context.Context, source string)

	// Metric reads
	GetMetrics(ctx context.Context, query models.MetricQuery) ([]*models.MetricPoint, error)
	GetAggregated(ctx context.Context, query models.AggregateQuery) ([]models.AggregatedPoint, error)
	GetErrorRate(ctx context.Context, start, end time.Time) (float64, error)
	GetAverageLatency(ctx context.Context, start, end time.Time) (float64, error)
	GetBusinessSummary(ctx context.Context, start, end time.Time, tenantID string) (map[string]float64, error)

	// Alert rule management
	CreateAlertRule(ctx context.Context, rule *models.AlertRule) error
	UpdateAlertRule(ctx context.Context, id string, patch models.AlertRulePatch) (*models.AlertRule, error)
	DeleteAlertRule(ctx context.Context, id string) error
	GetAlertRule(ctx context.Context, id string) (*models.AlertRule, error)
	ListAlertRules(ctx context.Context, enabledOnly bool) ([]*models.AlertRule, error)
	ImportAlertRules(ctx context.Context, r io.Reader) (int, error)

	// Alert lifecycle
	GetActiveAlerts(ctx context.Context) ([]*models.Alert, error)
	ResolveAlert(ctx context.Context, id string) error
}
