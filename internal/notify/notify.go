// Package notify implements the admin-notification sink CertRotator (and,
// potentially, other workers) use to raise human-facing alerts — expiry
// warnings, renewal failures. Grounded directly on
// wisbric-nightowl's pkg/slack/notifier.go webhook-post pattern.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Message is one notification to deliver.
type Message struct {
	Title   string
	Body    string
	Severity string // "info" | "warning" | "error"
}

// Sink delivers admin notifications. Implementations must be safe to call
// when disabled (no-op) rather than requiring callers to check first.
type Sink interface {
	Notify(ctx context.Context, msg Message) error
}

// SlackSink posts notifications to a Slack channel via a bot token. If
// botToken is empty, it behaves as a logging-only no-op — callers don't
// need to branch on whether Slack is configured.
type SlackSink struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewSlackSink creates a SlackSink. If botToken is empty, the sink only logs.
func NewSlackSink(botToken, channel string, logger *slog.Logger) *SlackSink {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &SlackSink{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the sink has a configured Slack client.
func (s *SlackSink) IsEnabled() bool {
	return s.client != nil && s.channel != ""
}

// Notify posts msg to the configured Slack channel, or logs it if disabled.
func (s *SlackSink) Notify(ctx context.Context, msg Message) error {
	if !s.IsEnabled() {
		s.logger.Info("notification (slack disabled)", "title", msg.Title, "severity", msg.Severity)
		return nil
	}

	text := fmt.Sprintf("[%s] %s: %s", msg.Severity, msg.Title, msg.Body)
	_, _, err := s.client.PostMessageContext(ctx, s.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting notification to slack: %w", err)
	}
	return nil
}
