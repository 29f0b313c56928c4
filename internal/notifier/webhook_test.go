package notifier

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/forenx/sentinel/internal/models"
)

func TestWebhookConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  WebhookConfig
		wantErr bool
	}{
		{"valid https", WebhookConfig{URL: "https://hooks.example.com/sentinel"}, false},
		{"valid http", WebhookConfig{URL: "http://collector.internal:9000/alerts"}, false},
		{"empty url", WebhookConfig{}, true},
		{"bad scheme", WebhookConfig{URL: "ftp://example.com/alerts"}, true},
		{"no host", WebhookConfig{URL: "http://"}, true},
		{"garbage", WebhookConfig{URL: "://nope"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWebhookSend(t *testing.T) {
	var gotBody []byte
	var gotHeader http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	wh, err := NewWebhookNotifier(WebhookConfig{URL: server.URL, Source: "sentinel-test"})
	if err != nil {
		t.Fatalf("new webhook: %v", err)
	}

	alert := &models.AttackAlert{
		Timestamp:  time.Date(2023, 10, 10, 13, 55, 36, 0, time.UTC),
		ClientIP:   "192.168.1.100",
		Type:       models.AttackSQLInjection,
		Endpoint:   "/admin",
		Confidence: 0.85,
		Details:    "SQL injection pattern detected in request",
		RawSample:  `192.168.1.100 - - [10/Oct/2023:13:55:36 +0000] "GET /admin?id=1' OR '1'='1 HTTP/1.1" 403 4617`,
	}

	if err := wh.Send(context.Background(), alert); err != nil {
		t.Fatalf("send: %v", err)
	}

	if ct := gotHeader.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %s, want application/json", ct)
	}
	if ua := gotHeader.Get("User-Agent"); ua != "sentinel-webhook" {
		t.Errorf("user agent = %s", ua)
	}
	if sig := gotHeader.Get("X-Sentinel-Signature"); sig != "" {
		t.Errorf("unsigned request should not carry a signature, got %s", sig)
	}

	var payload webhookPayload
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Event != "attack_alert" {
		t.Errorf("event = %s, want attack_alert", payload.Event)
	}
	if payload.Source != "sentinel-test" {
		t.Errorf("source = %s, want sentinel-test", payload.Source)
	}
	if payload.Severity != models.SeverityHigh {
		t.Errorf("severity = %s, want high", payload.Severity)
	}
	if payload.Attack != "SQL Injection" {
		t.Errorf("attack = %s, want SQL Injection", payload.Attack)
	}
	if payload.Alert == nil || payload.Alert.ClientIP != "192.168.1.100" {
		t.Errorf("alert not carried in payload: %+v", payload.Alert)
	}
}

func TestWebhookSendSigned(t *testing.T) {
	secret := "shared-secret"
	var gotBody []byte
	var gotSig string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Sentinel-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	wh, err := NewWebhookNotifier(WebhookConfig{URL: server.URL, Secret: secret})
	if err != nil {
		t.Fatalf("new webhook: %v", err)
	}

	alert := &models.AttackAlert{
		Timestamp:  time.Now().UTC(),
		ClientIP:   "10.0.0.7",
		Type:       models.AttackBruteForce,
		Endpoint:   "/login",
		Confidence: 0.95,
		Details:    "Brute force attempt",
	}
	if err := wh.Send(context.Background(), alert); err != nil {
		t.Fatalf("send: %v", err)
	}

	if !strings.HasPrefix(gotSig, "sha256=") {
		t.Fatalf("signature header = %q, want sha256= prefix", gotSig)
	}
	want := signBody(secret, gotBody)
	if !hmac.Equal([]byte(gotSig), []byte(want)) {
		t.Errorf("signature mismatch: got %s, want %s", gotSig, want)
	}
}

func TestWebhookSendServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collector unavailable", http.StatusInternalServerError)
	}))
	defer server.Close()

	wh, err := NewWebhookNotifier(WebhookConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("new webhook: %v", err)
	}

	alert := makeAlert("10.0.0.1", models.AttackDOS, 0.90)
	err = wh.Send(context.Background(), alert)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error should mention status: %v", err)
	}
}

func TestWebhookSendAccepts2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	wh, err := NewWebhookNotifier(WebhookConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("new webhook: %v", err)
	}

	alert := makeAlert("10.0.0.1", models.AttackDOS, 0.90)
	if err := wh.Send(context.Background(), alert); err != nil {
		t.Errorf("202 should count as delivered: %v", err)
	}
}

func TestWebhookName(t *testing.T) {
	wh, err := NewWebhookNotifier(WebhookConfig{URL: "https://hooks.example.com/x"})
	if err != nil {
		t.Fatalf("new webhook: %v", err)
	}
	if wh.Name() != "webhook" {
		t.Errorf("name = %s, want webhook", wh.Name())
	}
}
