package adapters

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/mailwave/platform/telemetry-core-go/internal/config"
)

// CoreConfig is the configuration consumed by the telemetry core,
// re-exported so embedding applications can build one explicitly.
type CoreConfig = config.CoreConfig

// LoadConfig loads configuration from environment variables.
func LoadConfig() *CoreConfig {
	return config.LoadCoreConfig()
}

// NewTelemetryAdapterFromEnv creates a telemetry core with configuration
// from environment variables. A .env file is loaded when present.
func NewTelemetryAdapterFromEnv(logger *logrus.Logger) (*TelemetryAdapter, error) {
	_ = godotenv.Load()

	return NewTelemetryAdapter(LoadConfig(), logger)
}

// NewTelemetryAdapterWithConfig creates a telemetry core with an explicit
// configuration, for embedding and tests.
func NewTelemetryAdapterWithConfig(cfg *CoreConfig, logger *logrus.Logger) (*TelemetryAdapter, error) {
	return NewTelemetryAdapter(cfg, logger)
}

// InitializeAndConnect creates, connects and starts a telemetry core in
// one step.
func InitializeAndConnect(ctx context.Context, logger *logrus.Logger) (*TelemetryAdapter, error) {
	adapter, err := NewTelemetryAdapterFromEnv(logger)
	if err != nil {
		return nil, err
	}

	if err := adapter.Connect(ctx); err != nil {
		return nil, err
	}

	if err := adapter.Start(ctx); err != nil {
		return nil, err
	}

	return adapter, nil
}
