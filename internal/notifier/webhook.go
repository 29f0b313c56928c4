package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/forenx/sentinel/internal/models"
)

// WebhookConfig holds webhook sink configuration.
type WebhookConfig struct {
	// URL is the endpoint alerts are POSTed to.
	URL string

	// Secret, when set, signs the request body with HMAC-SHA256 and
	// puts the hex digest in the X-Sentinel-Signature header.
	Secret string

	// Timeout bounds one delivery attempt (default: 15s).
	Timeout time.Duration

	// Source identifies this instance in the payload (default: "sentinel").
	Source string
}

// Validate validates the webhook configuration.
func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook URL must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("webhook URL must have a host")
	}
	return nil
}

// WebhookNotifier delivers alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhookNotifier creates a new webhook sink.
func NewWebhookNotifier(config WebhookConfig) (*WebhookNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.Source == "" {
		config.Source = "sentinel"
	}

	return &WebhookNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Name returns "webhook".
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// webhookPayload is the delivery envelope. Receivers key on "event".
type webhookPayload struct {
	Event    string              `json:"event"`
	Source   string              `json:"source"`
	Severity models.Severity     `json:"severity"`
	Attack   string              `json:"attack"`
	Alert    *models.AttackAlert `json:"alert"`
	SentAt   time.Time           `json:"sent_at"`
}

// Send posts one alert to the configured endpoint. Any 2xx response
// counts as delivered.
func (w *WebhookNotifier) Send(ctx context.Context, alert *models.AttackAlert) error {
	payload := webhookPayload{
		Event:    "attack_alert",
		Source:   w.config.Source,
		Severity: alert.Severity(),
		Attack:   alert.Type.DisplayName(),
		Alert:    alert,
		SentAt:   time.Now().UTC(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "sentinel-webhook")
	if w.config.Secret != "" {
		req.Header.Set("X-Sentinel-Signature", signBody(w.config.Secret, body))
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook endpoint error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Close is a no-op for the webhook sink.
func (w *WebhookNotifier) Close() error {
	return nil
}

// signBody computes the signature header value for a request body.
func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
