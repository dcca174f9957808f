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

// AlertPostgresRepository implements AlertRepository using PostgreSQL.
type AlertPostgresRepository struct {
	db     DBExecutor
	logger *logrus.Logger
	config *config.CoreConfig
}

// NewAlertRepository creates a new PostgreSQL-based alert repository.
func NewAlertRepository(db DBExecutor, logger *logrus.Logger, cfg *config.CoreConfig) interfaces.AlertRepository {
	return &AlertPostgresRepository{
		db:     db,
		logger: logger,
		config: cfg,
	}
}

// CreateRule inserts a new alert rule.
func (r *AlertPostgresRepository) CreateRule(ctx context.Context, rule *models.AlertRule) error {
	query := `
		INSERT INTO alert_rules (
			id, name, metric, condition, threshold, window_minutes,
			severity, enabled, channels, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	channels, err := marshalChannels(rule.Channels)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.Metric, string(rule.Condition), rule.Threshold,
		rule.WindowMinutes, string(rule.Severity), rule.Enabled, channels,
		rule.CreatedAt, rule.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create alert rule: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"rule_id": rule.ID,
		"metric":  rule.Metric,
		"name":    rule.Name,
	}).Debug("Alert rule created")

	return nil
}

// UpdateRule applies a partial update and returns the stored rule.
func (r *AlertPostgresRepository) UpdateRule(ctx context.Context, id string, patch models.AlertRulePatch) (*models.AlertRule, error) {
	var sets []string
	var args []interface{}
	argIndex := 1

	addSet := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}

	if patch.Name != nil {
		addSet("name", *patch.Name)
	}
	if patch.Metric != nil {
		addSet("metric", *patch.Metric)
	}
	if patch.Condition != nil {
		addSet("condition", string(*patch.Condition))
	}
	if patch.Threshold != nil {
		addSet("threshold", *patch.Threshold)
	}
	if patch.WindowMinutes != nil {
		addSet("window_minutes", *patch.WindowMinutes)
	}
	if patch.Severity != nil {
		addSet("severity", string(*patch.Severity))
	}
	if patch.Enabled != nil {
		addSet("enabled", *patch.Enabled)
	}
	if patch.Channels != nil {
		channels, err := marshalChannels(patch.Channels)
		if err != nil {
			return nil, err
		}
		addSet("channels", channels)
	}

	addSet("updated_at", time.Now())

	query := fmt.Sprintf(`
		UPDATE alert_rules
		SET %s
		WHERE id = $%d
		RETURNING id, name, metric, condition, threshold, window_minutes,
		          severity, enabled, channels, created_at, updated_at`,
		strings.Join(sets, ", "), argIndex)
	args = append(args, id)

	row := r.db.QueryRowContext(ctx, query, args...)

	rule, err := scanRule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to update alert rule: %w", err)
	}

	return rule, nil
}

// DeleteRule removes an alert rule.
func (r *AlertPostgresRepository) DeleteRule(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrRuleNotFound
	}

	return nil
}

// GetRule retrieves an alert rule by id.
func (r *AlertPostgresRepository) GetRule(ctx context.Context, id string) (*models.AlertRule, error) {
	query := `
		SELECT id, name, metric, condition, threshold, window_minutes,
		       severity, enabled, channels, created_at, updated_at
		FROM alert_rules
		WHERE id = $1`

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get alert rule: %w", err)
	}

	return rule, nil
}

// ListRules retrieves alert rules, optionally only enabled ones.
func (r *AlertPostgresRepository) ListRules(ctx context.Context, enabledOnly bool) ([]*models.AlertRule, error) {
	query := `
		SELECT id, name, metric, condition, threshold, window_minutes,
		       severity, enabled, channels, created_at, updated_at
		FROM alert_rules`

	if enabledOnly {
		query += " WHERE enabled = true"
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AlertRule

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			r.logger.WithError(err).Warn("Failed to scan alert rule row")
			continue
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rule rows: %w", err)
	}

	return rules, nil
}

// OpenAlert inserts the alert only when the rule has no open alert. The
// existence check and the insert are a single statement so concurrent
// evaluators cannot both fire for the same rule.
func (r *AlertPostgresRepository) OpenAlert(ctx context.Context, alert *models.Alert) (bool, error) {
	query := `
		INSERT INTO alerts (id, rule_id, message, severity, timestamp, resolved, metadata)
		SELECT $1, $2, $3, $4, $5, false, $6
		WHERE NOT EXISTS (
			SELECT 1 FROM alerts WHERE rule_id = $2 AND resolved = false
		)`

	metadata, err := marshalMetadata(alert.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to serialize alert metadata: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query,
		alert.ID, alert.RuleID, alert.Message, string(alert.Severity),
		alert.Timestamp, metadata)
	if err != nil {
		return false, fmt.Errorf("failed to open alert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	created := rowsAffected > 0
	if created {
		r.logger.WithFields(logrus.Fields{
			"alert_id": alert.ID,
			"rule_id":  alert.RuleID,
			"severity": alert.Severity,
		}).Info("Alert opened")
	}

	return created, nil
}

// ResolveAlert marks one alert resolved. Resolving an already-resolved
// alert is a no-op; an unknown id is an error.
func (r *AlertPostgresRepository) ResolveAlert(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE alerts
		SET resolved = true, resolved_at = $2
		WHERE id = $1 AND resolved = false`

	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists bool
		checkQuery := `SELECT EXISTS (SELECT 1 FROM alerts WHERE id = $1)`
		if err := r.db.QueryRowContext(ctx, checkQuery, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check alert existence: %w", err)
		}
		if !exists {
			return models.ErrAlertNotFound
		}
		// Already resolved.
		return nil
	}

	r.logger.WithField("alert_id", id).Info("Alert resolved")

	return nil
}

// ResolveAlertsForRule resolves any open alert for the rule and returns
// how many were resolved.
func (r *AlertPostgresRepository) ResolveAlertsForRule(ctx context.Context, ruleID string, at time.Time) (int64, error) {
	query := `
		UPDATE alerts
		SET resolved = true, resolved_at = $2
		WHERE rule_id = $1 AND resolved = false`

	result, err := r.db.ExecContext(ctx, query, ruleID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve alerts for rule: %w", err)
	}

	resolved, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if resolved > 0 {
		r.logger.WithFields(logrus.Fields{
			"rule_id":        ruleID,
			"resolved_count": resolved,
		}).Info("Auto-resolved alerts for rule")
	}

	return resolved, nil
}

// ListOpenAlerts retrieves all unresolved alerts, newest first.
func (r *AlertPostgresRepository) ListOpenAlerts(ctx context.Context) ([]*models.Alert, error) {
	query := `
		SELECT id, rule_id, message, severity, timestamp, resolved, resolved_at, metadata
		FROM alerts
		WHERE resolved = false
		ORDER BY timestamp DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list open alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert

	for rows.Next() {
		alert := &models.Alert{}
		var severity string
		var resolvedAt sql.NullTime
		var metadata []byte

		err := rows.Scan(&alert.ID, &alert.RuleID, &alert.Message, &severity,
			&alert.Timestamp, &alert.Resolved, &resolvedAt, &metadata)
		if err != nil {
			r.logger.WithError(err).Warn("Failed to scan alert row")
			continue
		}

		alert.Severity = models.AlertSeverity(severity)
		if resolvedAt.Valid {
			alert.ResolvedAt = &resolvedAt.Time
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &alert.Metadata); err != nil {
				r.logger.WithError(err).Warn("Failed to deserialize alert metadata")
			}
		}

		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}

	return alerts, nil
}

// Helper functions

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*models.AlertRule, error) {
	rule := &models.AlertRule{}
	var condition, severity string
	var channels []byte

	err := row.Scan(&rule.ID, &rule.Name, &rule.Metric, &condition, &rule.Threshold,
		&rule.WindowMinutes, &severity, &rule.Enabled, &channels,
		&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rule.Condition = models.Condition(condition)
	rule.Severity = models.AlertSeverity(severity)
	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &rule.Channels); err != nil {
			return nil, fmt.Errorf("failed to deserialize rule channels: %w", err)
		}
	}

	return rule, nil
}

func marshalChannels(channels []models.Channel) ([]byte, error) {
	if len(channels) == 0 {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(channels)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize rule channels: %w", err)
	}
	return data, nil
}
