package alerting

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mailwave/platform/telemetry-core-go/pkg/models"
)

// ruleDocument is the YAML shape of a declarative rule set.
type ruleDocument struct {
	Rules []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	ID            string           `yaml:"id"`
	Name          string           `yaml:"name"`
	Metric        string           `yaml:"metric"`
	Condition     string           `yaml:"condition"`
	Threshold     float64          `yaml:"threshold"`
	WindowMinutes int              `yaml:"window_minutes"`
	Severity      string           `yaml:"severity"`
	Enabled       *bool            `yaml:"enabled"`
	Channels      []models.Channel `yaml:"channels"`
}

// ParseRules reads a YAML rule document and returns validated rules.
// Missing ids get generated ones; enabled defaults to true.
func ParseRules(r io.Reader) ([]*models.AlertRule, error) {
	var doc ruleDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse rule document: %w", err)
	}

	rules := make([]*models.AlertRule, 0, len(doc.Rules))

	for i, spec := range doc.Rules {
		condition, err := models.ParseCondition(spec.Condition)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, spec.Name, err)
		}

		enabled := true
		if spec.Enabled != nil {
			enabled = *spec.Enabled
		}

		id := spec.ID
		if id == "" {
			id = uuid.NewString()
		}

		rule := &models.AlertRule{
			ID:            id,
			Name:          spec.Name,
			Metric:        spec.Metric,
			Condition:     condition,
			Threshold:     spec.Threshold,
			WindowMinutes: spec.WindowMinutes,
			Severity:      models.AlertSeverity(spec.Severity),
			Enabled:       enabled,
			Channels:      spec.Channels,
		}

		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, spec.Name, err)
		}

		rules = append(rules, rule)
	}

	return rules, nil
}

// ImportRules parses a YAML rule document and stores every valid rule.
// Rules take effect on the next evaluation tick. Returns how many rules
// were created.
func (e *Engine) ImportRules(ctx context.Context, r io.Reader) (int, error) {
	rules, err := ParseRules(r)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, rule := range rules {
		if err := e.alerts.CreateRule(ctx, rule); err != nil {
			e.logger.WithError(err).WithField("rule_name", rule.Name).Warn("Failed to import rule, skipping")
			continue
		}
		created++
	}

	e.logger.WithField("count", created).Info("Imported alert rules")

	return created, nil
}
