package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadCoreConfigDefaults(t *testing.T) {
	cfg := LoadCoreConfig()

	assert.Equal(t, 10*time.Second, cfg.FlushInterval)
	assert.Equal(t, 100, cfg.FlushHighWater)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention)
	assert.Equal(t, 2*time.Second, cfg.SlowRequestThreshold)
	assert.Equal(t, 7*24*time.Hour, cfg.CounterTTL)
	assert.Equal(t, time.Minute, cfg.EvaluationInterval)
	assert.Equal(t, 5, cfg.AuthFailureThreshold)
	assert.Equal(t, 15*time.Minute, cfg.AuthFailureWindow)
	assert.Equal(t, time.Hour, cfg.SignupStartWindow)
}

func TestLoadCoreConfigOverrides(t *testing.T) {
	t.Setenv("METRIC_FLUSH_INTERVAL", "5s")
	t.Setenv("METRIC_FLUSH_HIGH_WATER", "250")
	t.Setenv("ALERT_EVALUATION_INTERVAL", "30s")
	t.Setenv("AUTH_FAILURE_THRESHOLD", "10")
	t.Setenv("POSTGRES_URL", "postgres://test:test@db:5432/telemetry")

	cfg := LoadCoreConfig()

	assert.Equal(t, 5*time.Second, cfg.FlushInterval)
	assert.Equal(t, 250, cfg.FlushHighWater)
	assert.Equal(t, 30*time.Second, cfg.EvaluationInterval)
	assert.Equal(t, 10, cfg.AuthFailureThreshold)
	assert.Equal(t, "postgres://test:test@db:5432/telemetry", cfg.PostgresURL)
}

func TestEnvHelpersIgnoreMalformedValues(t *testing.T) {
	t.Setenv("METRIC_FLUSH_HIGH_WATER", "not-a-number")
	t.Setenv("METRIC_FLUSH_INTERVAL", "soon")

	cfg := LoadCoreConfig()

	assert.Equal(t, 100, cfg.FlushHighWater)
	assert.Equal(t, 10*time.Second, cfg.FlushInterval)
}
