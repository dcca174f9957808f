package models

import (
	"fmt"
	"strings"
	"time"
)

// Condition is the closed set of comparisons an alert rule can apply to a
// metric value. Unknown strings are rejected at parse time so evaluation
// never needs a fallback branch.
type Condition string

const (
	ConditionGreaterThan Condition = "greater_than"
	ConditionLessThan    Condition = "less_than"
	ConditionEquals      Condition = "equals"
	ConditionNotEquals   Condition = "not_equals"
)

// IsValid reports whether the condition is one of the known comparisons.
func (c Condition) IsValid() bool {
	switch c {
	case ConditionGreaterThan, ConditionLessThan, ConditionEquals, ConditionNotEquals:
		return true
	default:
		return false
	}
}

// Met evaluates the condition against a value and threshold. Greater-than
// and less-than are strict: a value exactly at the threshold does not fire.
func (c Condition) Met(value, threshold float64) bool {
	switch c {
	case ConditionGreaterThan:
		return value > threshold
	case ConditionLessThan:
		return value < threshold
	case ConditionEquals:
		return value == threshold
	case ConditionNotEquals:
		return value != threshold
	default:
		return false
	}
}

// ParseCondition normalizes a condition string, accepting the short
// operator aliases used by older rule definitions.
func ParseCondition(s string) (Condition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gt", "greater_than", ">":
		return ConditionGreaterThan, nil
	case "lt", "less_than", "<":
		return ConditionLessThan, nil
	case "eq", "equals", "==":
		return ConditionEquals, nil
	case "neq", "not_equals", "!=":
		return ConditionNotEquals, nil
	default:
		return "", fmt.Errorf("unknown alert condition: %q", s)
	}
}

// AlertSeverity ranks how urgent a fired alert is.
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

// IsValid reports whether the severity is one of the known levels.
func (s AlertSeverity) IsValid() bool {
	switch s {
	case AlertSeverityLow, AlertSeverityMedium, AlertSeverityHigh, AlertSeverityCritical:
		return true
	default:
		return false
	}
}

// ChannelType identifies a notification transport.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelWebhook ChannelType = "webhook"
	ChannelChat    ChannelType = "chat"
)

// IsValid reports whether the channel type has a known transport.
func (t ChannelType) IsValid() bool {
	switch t {
	case ChannelEmail, ChannelWebhook, ChannelChat:
		return true
	default:
		return false
	}
}

// Channel is a notification target embedded in an alert rule.
type Channel struct {
	Type   ChannelType       `json:"type" yaml:"type"`
	Config map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

// AlertRule defines one periodic threshold check over a single metric.
// Identity is the ID; name uniqueness is advisory only.
type AlertRule struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Metric        string        `json:"metric"`
	Condition     Condition     `json:"condition"`
	Threshold     float64       `json:"threshold"`
	WindowMinutes int           `json:"window_minutes"`
	Severity      AlertSeverity `json:"severity"`
	Enabled       bool          `json:"enabled"`
	Channels      []Channel     `json:"channels,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Validate checks the rule for configuration errors before it is stored.
func (r *AlertRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("alert rule name is required")
	}
	if strings.TrimSpace(r.Metric) == "" {
		return fmt.Errorf("alert rule metric is required")
	}
	if !r.Condition.IsValid() {
		return fmt.Errorf("invalid alert condition: %q", r.Condition)
	}
	if !r.Severity.IsValid() {
		return fmt.Errorf("invalid alert severity: %q", r.Severity)
	}
	if r.WindowMinutes <= 0 {
		return fmt.Errorf("alert window must be positive, got %d", r.WindowMinutes)
	}
	for _, ch := range r.Channels {
		if !ch.Type.IsValid() {
			return fmt.Errorf("invalid notification channel type: %q", ch.Type)
		}
	}
	return nil
}

// AlertRulePatch carries the fields of a partial rule update. Nil pointers
// leave the stored value untouched.
type AlertRulePatch struct {
	Name          *string
	Metric        *string
	Condition     *Condition
	Threshold     *float64
	WindowMinutes *int
	Severity      *AlertSeverity
	Enabled       *bool
	Channels      []Channel
}

// Alert is one firing of a rule. Lifecycle is open then resolved; at most
// one open alert exists per rule at any time.
type Alert struct {
	ID         string                 `json:"id"`
	RuleID     string                 `json:"rule_id"`
	Message    string                 `json:"message"`
	Severity   AlertSeverity          `json:"severity"`
	Timestamp  time.Time              `json:"timestamp"`
	Resolved   bool                   `json:"resolved"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
