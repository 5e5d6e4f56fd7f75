// Package monitoring delivers usage alerts to external channels and exposes
// Prometheus metrics for provider attempts, spend and usage windows.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-enricher/internal/usage"
)

// DefaultWebhookTimeout bounds a single webhook delivery.
const DefaultWebhookTimeout = 10 * time.Second

// webhookPayload is the JSON body posted for each alert.
type webhookPayload struct {
	Source    string         `json:"source"`
	Subject   string         `json:"subject"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// WebhookNotifier posts usage alerts as JSON to a webhook URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

var _ usage.Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier creates a notifier for url. A non-positive timeout uses
// DefaultWebhookTimeout.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify posts a single alert to the webhook URL.
func (n *WebhookNotifier) Notify(ctx context.Context, alert usage.Alert) error {
	payload, err := json.Marshal(webhookPayload{
		Source:   "profile-enricher",
		Subject:  alert.Subject,
		Severity: string(alert.Severity),
		Message:  alert.Message,
		Details: map[string]any{
			"used":  alert.Used,
			"limit": alert.Limit,
			"ratio": alert.Ratio,
		},
		Timestamp: alert.Timestamp,
	})
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}

	zap.L().Info("monitoring: alert sent",
		zap.String("subject", alert.Subject),
		zap.String("severity", string(alert.Severity)),
	)
	return nil
}
