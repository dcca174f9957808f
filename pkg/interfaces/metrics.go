package interfaces

import (
	"context"
	"time"

	"github.com/mailwave/platform/telemetry-core-go/pkg/models"
)

// MetricRepository defines the durable write and read path for telemetry
// events. Implementations own the performance_metrics, business_metrics,
// error_events and metrics tables.
type MetricRepository interface {
	// Bulk write operations (flush path)
	InsertPerformanceBatch(ctx context.Context, events []*models.PerformanceEvent) error
	InsertBusinessBatch(ctx context.Context, events []*models.BusinessEvent) error
	InsertErrorBatch(ctx context.Context, events []*models.ErrorEvent) error
	InsertPointBatch(ctx context.Context, points []*models.MetricPoint) error

	// Point and aggregated reads
	QueryPoints(ctx context.Context, query models.MetricQuery) ([]*models.MetricPoint, error)
	AggregatePoints(ctx context.Context, query models.AggregateQuery) ([]models.AggregatedPoint, error)
	AggregateBusiness(ctx context.Context, query models.AggregateQuery) ([]models.AggregatedPoint, error)

	// Derived scalar reads
	PerformanceCount(ctx context.Context, start, end time.Time) (int64, error)
	ErrorCount(ctx context.Context, start, end time.Time, severity models.ErrorSeverity) (int64, error)
	AverageLatency(ctx context.Context, start, end time.Time) (float64, error)
	BusinessSummary(ctx context.Context, start, end time.Time, tenantID string) (map[string]float64, error)

	// Cleanup operations
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
