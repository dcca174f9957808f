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

// severityColors maps alert severity to the attachment accent color.
var severityColors = map[models.AlertSeverity]string{
	models.AlertSeverityLow:      "#36a64f",
	models.AlertSeverityMedium:   "#daa038",
	models.AlertSeverityHigh:     "#e06030",
	models.AlertSeverityCritical: "#d00000",
}

// ChatNotifier posts fired alerts to a chat webhook (Slack-compatible
// payload with a severity-colored attachment).
type ChatNotifier struct {
	client *http.Client
	logger *logrus.Logger
}

// NewChatNotifier creates a chat transport. A nil client falls back to a
// default with a 10s timeout.
func NewChatNotifier(client *http.Client, logger *logrus.Logger) *ChatNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ChatNotifier{
		client: client,
		logger: logger,
	}
}

// Type returns the channel type this notifier handles.
func (n *ChatNotifier) Type() models.ChannelType {
	return models.ChannelChat
}

// Send posts the alert as an attachment payload to the channel's webhook.
func (n *ChatNotifier) Send(ctx context.Context, alert *models.Alert, channel models.Channel) error {
	url := channel.Config["webhook_url"]
	if url == "" {
		return fmt.Errorf("chat channel missing %q config", "webhook_url")
	}

	color, ok := severityColors[alert.Severity]
	if !ok {
		color = severityColors[models.AlertSeverityMedium]
	}

	payload, err := json.Marshal(map[string]interface{}{
		"attachments": []map[string]interface{}{
			{
				"color": color,
				"title": fmt.Sprintf("Alert: %s", alert.Message),
				"text":  fmt.Sprintf("Rule %s | severity %s", alert.RuleID, alert.Severity),
				"ts":    alert.Timestamp.Unix(),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to serialize chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &resilience.HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	n.logger.WithFields(logrus.Fields{
		"alert_id": alert.ID,
	}).Debug("Alert chat message delivered")

	return nil
}
