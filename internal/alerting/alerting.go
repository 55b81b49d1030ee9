// Package alerting delivers monitoring alerts such as stale-config warnings.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/config"
)

const defaultUsername = "codequal"

var severityColors = map[schemas.AlertSeverity]string{
	schemas.AlertInfo:    "#439FE0",
	schemas.AlertWarning: "warning",
}

// SlackAlerter posts alerts to a Slack incoming webhook.
type SlackAlerter struct {
	webhookURL string
	channel    string
	username   string
	client     *http.Client
}

// NewSlackAlerter creates an alerter from config.
func NewSlackAlerter(cfg config.SlackConfig) (*SlackAlerter, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("slack webhook url is required")
	}
	username := cfg.Username
	if username == "" {
		username = defaultUsername
	}
	return &SlackAlerter{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		username:   username,
		client:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (a *SlackAlerter) Alert(ctx context.Context, alert schemas.Alert) error {
	msg := &slack.WebhookMessage{
		Channel:     a.channel,
		Username:    a.username,
		Text:        alert.Title,
		Attachments: []slack.Attachment{attachment(alert)},
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, a.webhookURL, a.client, msg); err != nil {
		return fmt.Errorf("failed to post slack alert: %w", err)
	}
	return nil
}

func attachment(alert schemas.Alert) slack.Attachment {
	keys := make([]string, 0, len(alert.Fields))
	for k := range alert.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]slack.AttachmentField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, slack.AttachmentField{Title: k, Value: alert.Fields[k], Short: true})
	}
	return slack.Attachment{
		Color:    severityColors[alert.Severity],
		Title:    alert.Title,
		Text:     alert.Message,
		Fields:   fields,
		Fallback: alert.Message,
	}
}

// LogAlerter writes alerts to the log. It is always wired so alerts are
// never lost when no external channel is configured.
type LogAlerter struct {
	logger *zap.Logger
}

func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger.Named("alerts")}
}

func (a *LogAlerter) Alert(_ context.Context, alert schemas.Alert) error {
	fields := []zap.Field{zap.String("title", alert.Title), zap.String("severity", string(alert.Severity))}
	for k, v := range alert.Fields {
		fields = append(fields, zap.String(k, v))
	}
	if alert.Severity == schemas.AlertWarning {
		a.logger.Warn(alert.Message, fields...)
	} else {
		a.logger.Info(alert.Message, fields...)
	}
	return nil
}

// Multi fans an alert out to every alerter and joins their errors.
type Multi []schemas.Alerter

func (m Multi) Alert(ctx context.Context, alert schemas.Alert) error {
	var errs []error
	for _, a := range m {
		if err := a.Alert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
