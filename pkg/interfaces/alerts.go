package interfaces

import (
	"context"
	"time"

	"github.com/mailwave/platform/telemetry-core-go/pkg/models"
)

// AlertRepository defines persistence for alert rules and alerts.
// Implementations own the alert_rules and alerts tables and must enforce
// the at-most-one-open-alert-per-rule invariant at the storage layer so
// concurrent evaluators cannot race past an application-level check.
type AlertRepository interface {
	// Rule CRUD
	CreateRule(ctx context.Context, rule *models.AlertRule) error
	UpdateRule(ctx context.Context, id string, patch models.AlertRulePatch) (*models.AlertRule, error)
	DeleteRule(ctx context.Context, id string) error
	GetRule(ctx context.Context, id string) (*models.AlertRule, error)
	ListRules(ctx context.Context, enabledOnly bool) ([]*models.AlertRule, error)

	// Alert lifecycle. OpenAlert is a conditional insert: it creates the
	// alert only when no open alert exists for the rule and reports
	// whether a row was actually created.
	OpenAlert(ctx context.Context, alert *models.Alert) (bool, error)
	ResolveAlert(ctx context.Context, id string, at time.Time) error
	ResolveAlertsForRule(ctx context.Context, ruleID string, at time.Time) (int64, error)
	ListOpenAlerts(ctx context.Context) ([]*models.Alert, error)
}
