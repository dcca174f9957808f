package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mailwave/platform/telemetry-core-go/pkg/models"
	"github.com/mailwave/platform/telemetry-core-go/pkg/resilience"
)

// WebhookNotifier POSTs fired alerts as JSON to the channel's URL.
type WebhookNotifier struct {
	client *http.Client
	logger *logrus.Logger
}

// NewWebhookNotifier creates a webhook transport. A nil client falls back
// to a default with a 10s timeout.
func NewWebhookNotifier(client *http.Client, logger *logrus.Logger) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{
		client: client,
		logger: logger,
	}
}

// Type returns the channel type this notifier handles.
func (n *WebhookNotifier) Type() models.ChannelType {
	return models.ChannelWebhook
}

// Send POSTs {"alert": ..., "timestamp": ...} to the configured URL.
// Non-2xx responses surface as HTTPError so the resilience layer can
// classify them.
func (n *WebhookNotifier) Send(ctx context.Context, alert *models.Alert, channel models.Channel) error {
	url := channel.Config["url"]
	if url == "" {
		return fmt.Errorf("webhook channel missing %q config", "url")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"alert":     alert,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to serialize webhook payload: %w", err)
	}

	if err := n.post(ctx, url, payload); err != nil {
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"url":      url,
	}).Debug("Alert webhook delivered")

	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &resilience.HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return nil
}
