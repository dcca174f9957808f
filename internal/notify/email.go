package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mailwave/platform/telemetry-core-go/pkg/models"
)

// SMTPConfig holds the mail relay settings shared by all email channels.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailNotifier delivers alerts over SMTP. Recipients come from the
// channel config ("to", comma separated).
type EmailNotifier struct {
	config SMTPConfig
	logger *logrus.Logger

	// sendFn allows tests to stub the SMTP round trip.
	sendFn func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier creates an email transport.
func NewEmailNotifier(cfg SMTPConfig, logger *logrus.Logger) *EmailNotifier {
	return &EmailNotifier{
		config: cfg,
		logger: logger,
		sendFn: smtp.SendMail,
	}
}

// Type returns the channel type this notifier handles.
func (n *EmailNotifier) Type() models.ChannelType {
	return models.ChannelEmail
}

// Send delivers the alert to the channel's recipients.
func (n *EmailNotifier) Send(ctx context.Context, alert *models.Alert, channel models.Channel) error {
	toField := channel.Config["to"]
	if toField == "" {
		return fmt.Errorf("email channel missing %q config", "to")
	}

	recipients := splitRecipients(toField)

	subject := fmt.Sprintf("[%s] Alert: %s", strings.ToUpper(string(alert.Severity)), alert.Message)
	body := fmt.Sprintf(
		"Alert %s fired at %s.\r\n\r\nRule: %s\r\nSeverity: %s\r\n\r\n%s\r\n",
		alert.ID, alert.Timestamp.Format("2006-01-02 15:04:05 MST"),
		alert.RuleID, alert.Severity, alert.Message)

	msg := strings.Builder{}
	fmt.Fprintf(&msg, "From: %s\r\n", n.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	}

	addr := fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)

	// net/smtp has no context support; run the send in a goroutine and
	// abandon it when the deadline passes.
	done := make(chan error, 1)
	go func() {
		done <- n.sendFn(addr, auth, n.config.From, recipients, []byte(msg.String()))
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send failed: %w", err)
		}
	}

	n.logger.WithFields(logrus.Fields{
		"alert_id":   alert.ID,
		"recipients": len(recipients),
	}).Debug("Alert email sent")

	return nil
}

func splitRecipients(field string) []string {
	parts := strings.Split(field, ",")
	recipients := make([]string, 0, len(parts))
	for _, part := range parts {
		if addr := strings.TrimSpace(part); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	return recipients
}
