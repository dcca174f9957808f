package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mailwave/platform/telemetry-core-go/internal/config"
	"github.com/mailwave/platform/telemetry-core-go/pkg/interfaces"
	"github.com/mailwave/platform/telemetry-core-go/pkg/models"
)

// DBExecutor interface allows using either *sql.DB or *sql.Tx
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// maxQueryRows caps point reads to bound response size.
const maxQueryRows = 1000

// MetricPostgresRepository implements MetricRepository using PostgreSQL.
type MetricPostgresRepository struct {
	db     DBExecutor
	logger *logrus.Logger
	config *config.CoreConfig
}

// NewMetricRepository creates a new PostgreSQL-based metric repository.
func NewMetricRepository(db DBExecutor, logger *logrus.Logger, cfg *config.CoreConfig) interfaces.MetricRepository {
	return &MetricPostgresRepository{
		db:     db,
		logger: logger,
		config: cfg,
	}
}

// InsertPerformanceBatch inserts a batch of performance events.
func (r *MetricPostgresRepository) InsertPerformanceBatch(ctx context.Context, events []*models.PerformanceEvent) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO performance_metrics (
			endpoint, http_method, status_code, latency_ms, timestamp,
			user_id, tenant_id, error_message
		) VALUES `

	values := make([]string, len(events))
	args := make([]interface{}, 0, len(events)*8)

	for i, event := range events {
		startIdx := i * 8
		values[i] = fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			startIdx+1, startIdx+2, startIdx+3, startIdx+4,
			startIdx+5, startIdx+6, startIdx+7, startIdx+8)

		args = append(args, event.Endpoint, event.HTTPMethod, event.StatusCode,
			event.LatencyMs, event.Timestamp, nullString(event.UserID),
			nullString(event.TenantID), nullString(event.ErrorMessage))
	}

	query += strings.Join(values, ", ")

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert performance metrics batch: %w", err)
	}

	r.logger.WithField("count", len(events)).Debug("Inserted performance metrics batch")

	return nil
}

// InsertBusinessBatch inserts a batch of business events.
func (r *MetricPostgresRepository) InsertBusinessBatch(ctx context.Context, events []*models.BusinessEvent) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO business_metrics (
			name, value, timestamp, tenant_id, user_id, metadata
		) VALUES `

	values := make([]string, len(events))
	args := make([]interface{}, 0, len(events)*6)

	for i, event := range events {
		metadata, err := marshalMetadata(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to serialize business metric metadata: %w", err)
		}

		startIdx := i * 6
		values[i] = fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
			startIdx+1, startIdx+2, startIdx+3, startIdx+4, startIdx+5, startIdx+6)

		args = append(args, event.Name, event.Value, event.Timestamp,
			nullString(event.TenantID), nullString(event.UserID), metadata)
	}

	query += strings.Join(values, ", ")

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert business metrics batch: %w", err)
	}

	r.logger.WithField("count", len(events)).Debug("Inserted business metrics batch")

	return nil
}

// InsertErrorBatch inserts a batch of error events.
func (r *MetricPostgresRepository) InsertErrorBatch(ctx context.Context, events []*models.ErrorEvent) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO error_events (
			id, message, stack_trace, severity, timestamp,
			user_id, tenant_id, endpoint, method, metadata
		) VALUES `

	values := make([]string, len(events))
	args := make([]interface{}, 0, len(events)*10)

	for i, event := range events {
		metadata, err := marshalMetadata(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to serialize error event metadata: %w", err)
		}

		startIdx := i * 10
		values[i] = fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			startIdx+1, startIdx+2, startIdx+3, startIdx+4, startIdx+5,
			startIdx+6, startIdx+7, startIdx+8, startIdx+9, startIdx+10)

		args = append(args, event.ID, event.Message, nullString(event.StackTrace),
			string(event.Severity), event.Timestamp, nullString(event.UserID),
			nullString(event.TenantID), nullString(event.Endpoint),
			nullString(event.Method), metadata)
	}

	query += strings.Join(values, ", ")

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert error events batch: %w", err)
	}

	r.logger.WithField("count", len(events)).Debug("Inserted error events batch")

	return nil
}

// InsertPointBatch inserts a batch of generic metric points.
func (r *MetricPostgresRepository) InsertPointBatch(ctx context.Context, points []*models.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}

	query := `
		INSERT INTO metrics (
			name, value, timestamp, tags, kind
		) VALUES `

	values := make([]string, len(points))
	args := make([]interface{}, 0, len(points)*5)

	for i, point := range points {
		tags, err := json.Marshal(point.Tags)
		if err != nil {
			return fmt.Errorf("failed to serialize metric tags: %w", err)
		}

		startIdx := i * 5
		values[i] = fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)",
			startIdx+1, startIdx+2, startIdx+3, startIdx+4, startIdx+5)

		args = append(args, point.Name, point.Value, point.Timestamp, tags, string(point.Kind))
	}

	query += strings.Join(values, ", ")

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert metrics batch: %w", err)
	}

	r.logger.WithField("count", len(points)).Debug("Inserted metrics batch")

	return nil
}

// QueryPoints retrieves metric points by name and time range, ascending.
func (r *MetricPostgresRepository) QueryPoints(ctx context.Context, query models.MetricQuery) ([]*models.MetricPoint, error) {
	sqlQuery := `
		SELECT name, value, timestamp, tags, kind
		FROM metrics
		WHERE name = $1 AND timestamp >= $2 AND timestamp <= $3`

	args := []interface{}{query.Name, query.Start, query.End}
	argIndex := 4

	if len(query.Tags) > 0 {
		tags, err := json.Marshal(query.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize tag filter: %w", err)
		}
		sqlQuery += fmt.Sprintf(" AND tags @> $%d::jsonb", argIndex)
		args = append(args, tags)
		argIndex++
	}

	limit := query.Limit
	if limit <= 0 || limit > maxQueryRows {
		limit = maxQueryRows
	}

	sqlQuery += fmt.Sprintf(" ORDER BY timestamp ASC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var points []*models.MetricPoint

	for rows.Next() {
		point := &models.MetricPoint{}
		var tags []byte
		var kind string

		if err := rows.Scan(&point.Name, &point.Value, &point.Timestamp, &tags, &kind); err != nil {
			r.logger.WithError(err).Warn("Failed to scan metric row")
			continue
		}

		point.Kind = models.MetricKind(kind)
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &point.Tags); err != nil {
				r.logger.WithError(err).Warn("Failed to deserialize metric tags")
			}
		}

		points = append(points, point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metric rows: %w", err)
	}

	return points, nil
}

// AggregatePoints groups generic metric values by truncated time bucket.
func (r *MetricPostgresRepository) AggregatePoints(ctx context.Context, query models.AggregateQuery) ([]models.AggregatedPoint, error) {
	return r.aggregate(ctx, "metrics", query)
}

// AggregateBusiness groups business metric values by truncated time bucket.
func (r *MetricPostgresRepository) AggregateBusiness(ctx context.Context, query models.AggregateQuery) ([]models.AggregatedPoint, error) {
	return r.aggregate(ctx, "business_metrics", query)
}

func (r *MetricPostgresRepository) aggregate(ctx context.Context, table string, query models.AggregateQuery) ([]models.AggregatedPoint, error) {
	if !query.Op.IsValid() {
		return nil, fmt.Errorf("invalid aggregation op: %q", query.Op)
	}

	bucketSeconds := int64(query.Bucket.Duration().Seconds())
	if bucketSeconds <= 0 {
		return nil, fmt.Errorf("invalid aggregation bucket: %q", query.Bucket)
	}

	// Op is validated against a closed set above, so interpolating the
	// aggregate function name is safe.
	aggExpr := fmt.Sprintf("%s(value)", strings.ToUpper(string(query.Op)))
	if query.Op == models.AggregateCount {
		aggExpr = "COUNT(*)"
	}

	sqlQuery := fmt.Sprintf(`
		SELECT to_timestamp(floor(extract(epoch FROM timestamp) / $1) * $1) AS bucket,
		       %s AS value
		FROM %s
		WHERE name = $2 AND timestamp >= $3 AND timestamp <= $4
		GROUP BY bucket
		ORDER BY bucket ASC`, aggExpr, table)

	rows, err := r.db.QueryContext(ctx, sqlQuery, bucketSeconds, query.Name, query.Start, query.End)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", table, err)
	}
	defer rows.Close()

	var points []models.AggregatedPoint

	for rows.Next() {
		var point models.AggregatedPoint
		if err := rows.Scan(&point.Timestamp, &point.Value); err != nil {
			r.logger.WithError(err).Warn("Failed to scan aggregated row")
			continue
		}
		points = append(points, point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aggregated rows: %w", err)
	}

	return points, nil
}

// PerformanceCount returns the number of performance events in range.
func (r *MetricPostgresRepository) PerformanceCount(ctx context.Context, start, end time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM performance_metrics
		WHERE timestamp >= $1 AND timestamp <= $2`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count performance metrics: %w", err)
	}

	return count, nil
}

// ErrorCount returns the number of error events of a severity in range.
func (r *MetricPostgresRepository) ErrorCount(ctx context.Context, start, end time.Time, severity models.ErrorSeverity) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM error_events
		WHERE severity = $1 AND timestamp >= $2 AND timestamp <= $3`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, string(severity), start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count error events: %w", err)
	}

	return count, nil
}

// AverageLatency returns the mean request latency in range, 0 with no rows.
func (r *MetricPostgresRepository) AverageLatency(ctx context.Context, start, end time.Time) (float64, error) {
	query := `
		SELECT COALESCE(AVG(latency_ms), 0)
		FROM performance_metrics
		WHERE timestamp >= $1 AND timestamp <= $2`

	var avg float64
	if err := r.db.QueryRowContext(ctx, query, start, end).Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to compute average latency: %w", err)
	}

	return avg, nil
}

// BusinessSummary sums business metric values per name in range, optionally
// scoped to one tenant.
func (r *MetricPostgresRepository) BusinessSummary(ctx context.Context, start, end time.Time, tenantID string) (map[string]float64, error) {
	query := `
		SELECT name, SUM(value)
		FROM business_metrics
		WHERE timestamp >= $1 AND timestamp <= $2`

	args := []interface{}{start, end}
	if tenantID != "" {
		query += " AND tenant_id = $3"
		args = append(args, tenantID)
	}
	query += " GROUP BY name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query business summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[string]float64)

	for rows.Next() {
		var name string
		var total float64
		if err := rows.Scan(&name, &total); err != nil {
			r.logger.WithError(err).Warn("Failed to scan business summary row")
			continue
		}
		summary[name] = total
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating business summary rows: %w", err)
	}

	return summary, nil
}

// DeleteOlderThan removes telemetry of all kinds older than the cutoff and
// returns the total number of rows deleted.
func (r *MetricPostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tables := []string{"performance_metrics", "business_metrics", "error_events", "metrics"}

	var total int64
	for _, table := range tables {
		query := fmt.Sprintf("DELETE FROM %s WHERE timestamp < $1", table)

		result, err := r.db.ExecContext(ctx, query, cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to delete old rows from %s: %w", table, err)
		}

		deleted, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get deleted count for %s: %w", table, err)
		}
		total += deleted
	}

	if total > 0 {
		r.logger.WithFields(logrus.Fields{
			"deleted_count": total,
			"before":        cutoff,
		}).Info("Deleted expired telemetry")
	}

	return total, nil
}

// Helper functions

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func marshalMetadata(metadata map[string]interface{}) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(metadata)
}
