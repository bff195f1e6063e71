package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prequal-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFetchRetriesExhausted AlertType = "fetch_retries_exhausted"
	AlertSyncRetriesExhausted  AlertType = "sync_retries_exhausted"
	AlertProviderContract      AlertType = "provider_contract_violation"
)

// Alert represents a single alert to be sent to the operations channel.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter delivers operational alerts via webhook. Job layers report here
// when automated retries are exhausted and a human has to step in.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchExhausted reports a provider fetch whose retry budget ran out. The
// affected fields have already been rolled back to manual entry.
func (a *Alerter) FetchExhausted(ctx context.Context, applicationID, provider string, attempts int, cause error) {
	a.send(ctx, Alert{
		Type:     AlertFetchRetriesExhausted,
		Severity: "high",
		Message: fmt.Sprintf(
			"fetch from %s failed after %d attempts for application %s; fields switched to manual entry",
			provider, attempts, applicationID,
		),
		Details: map[string]any{
			"application_id": applicationID,
			"provider":       provider,
			"attempts":       attempts,
			"error":          cause.Error(),
		},
		Timestamp: time.Now().UTC(),
	})
}

// SyncExhausted reports a webhook delivery whose automated retries ran out.
func (a *Alerter) SyncExhausted(ctx context.Context, applicationID, integrator string, attempts int, cause error) {
	a.send(ctx, Alert{
		Type:     AlertSyncRetriesExhausted,
		Severity: "high",
		Message: fmt.Sprintf(
			"delivery to %s failed after %d attempts for application %s; manual retry required",
			integrator, attempts, applicationID,
		),
		Details: map[string]any{
			"application_id": applicationID,
			"integrator":     integrator,
			"attempts":       attempts,
			"error":          cause.Error(),
		},
		Timestamp: time.Now().UTC(),
	})
}

// ContractViolation reports an upstream response that no longer matches the
// provider's documented shape. These need a code change, not a retry.
func (a *Alerter) ContractViolation(ctx context.Context, applicationID, provider string, cause error) {
	a.send(ctx, Alert{
		Type:     AlertProviderContract,
		Severity: "high",
		Message:  fmt.Sprintf("provider %s returned an unexpected response shape for application %s", provider, applicationID),
		Details: map[string]any{
			"application_id": applicationID,
			"provider":       provider,
			"error":          cause.Error(),
		},
		Timestamp: time.Now().UTC(),
	})
}

func (a *Alerter) send(ctx context.Context, alert Alert) {
	if a == nil || a.cfg.WebhookURL == "" {
		return
	}
	if err := a.sendWebhook(ctx, alert); err != nil {
		zap.L().Error("monitoring: failed to send alert",
			zap.String("type", string(alert.Type)),
			zap.Error(err),
		)
		return
	}
	zap.L().Info("monitoring: alert sent",
		zap.String("type", string(alert.Type)),
		zap.String("severity", alert.Severity),
	)
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
