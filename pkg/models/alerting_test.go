package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionMet(t *testing.T) {
	tests := []struct {
		name      string
		condition Condition
		value     float64
		threshold float64
		want      bool
	}{
		{"greater than fires above", ConditionGreaterThan, 0.06, 0.05, true},
		{"greater than quiet below", ConditionGreaterThan, 0.04, 0.05, false},
		{"greater than quiet at threshold", ConditionGreaterThan, 0.05, 0.05, false},
		{"less than fires below", ConditionLessThan, 10, 100, true},
		{"less than quiet above", ConditionLessThan, 150, 100, false},
		{"less than quiet at threshold", ConditionLessThan, 100, 100, false},
		{"equals fires at threshold", ConditionEquals, 3, 3, true},
		{"equals quiet off threshold", ConditionEquals, 3.1, 3, false},
		{"not equals fires off threshold", ConditionNotEquals, 1, 0, true},
		{"not equals quiet at threshold", ConditionNotEquals, 0, 0, false},
		{"unknown condition never fires", Condition("between"), 1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.condition.Met(tt.value, tt.threshold))
		})
	}
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		input string
		want  Condition
	}{
		{"greater_than", ConditionGreaterThan},
		{"gt", ConditionGreaterThan},
		{">", ConditionGreaterThan},
		{"less_than", ConditionLessThan},
		{"lt", ConditionLessThan},
		{"<", ConditionLessThan},
		{"equals", ConditionEquals},
		{"eq", ConditionEquals},
		{"==", ConditionEquals},
		{"not_equals", ConditionNotEquals},
		{"neq", ConditionNotEquals},
		{"!=", ConditionNotEquals},
		{" GT ", ConditionGreaterThan},
	}

	for _, tt := range tests {
		got, err := ParseCondition(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}

	_, err := ParseCondition("between")
	assert.Error(t, err)
	_, err = ParseCondition("")
	assert.Error(t, err)
}

func validRule() AlertRule {
	return AlertRule{
		ID:            "rule-1",
		Name:          "High error rate",
		Metric:        "performance:error_rate",
		Condition:     ConditionGreaterThan,
		Threshold:     0.05,
		WindowMinutes: 5,
		Severity:      AlertSeverityHigh,
		Enabled:       true,
	}
}

func TestAlertRuleValidate(t *testing.T) {
	rule := validRule()
	require.NoError(t, rule.Validate())

	tests := []struct {
		name   string
		mutate func(*AlertRule)
	}{
		{"missing name", func(r *AlertRule) { r.Name = "  " }},
		{"missing metric", func(r *AlertRule) { r.Metric = "" }},
		{"bad condition", func(r *AlertRule) { r.Condition = "between" }},
		{"bad severity", func(r *AlertRule) { r.Severity = "urgent" }},
		{"zero window", func(r *AlertRule) { r.WindowMinutes = 0 }},
		{"negative window", func(r *AlertRule) { r.WindowMinutes = -5 }},
		{"bad channel type", func(r *AlertRule) {
			r.Channels = []Channel{{Type: "pager"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := validRule()
			tt.mutate(&bad)
			assert.Error(t, bad.Validate())
		})
	}
}

func TestAlertRuleValidateAcceptsKnownChannels(t *testing.T) {
	rule := validRule()
	rule.Channels = []Channel{
		{Type: ChannelEmail, Config: map[string]string{"to": "ops@example.com"}},
		{Type: ChannelWebhook, Config: map[string]string{"url": "https://example.com/hook"}},
		{Type: ChannelChat},
	}

	assert.NoError(t, rule.Validate())
}
