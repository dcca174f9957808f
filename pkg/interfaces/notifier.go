package interfaces

import (
	"context"

	"github.com/mailwave/platform/telemetry-core-go/pkg/models"
)

// Notifier delivers a fired alert to one channel type. Implementations
// must honor the context deadline; the dispatcher bounds every send with
// a timeout so a hung transport cannot stall the evaluation loop.
type Notifier interface {
	// Type returns the channel type this notifier handles.
	Type() models.ChannelType

	// Send delivers the alert using the per-channel config.
	Send(ctx context.Context, alert *models.Alert, channel models.Channel) error
}
