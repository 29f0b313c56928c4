package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forenx/sentinel/internal/models"
)

// mockSink is a test sink that can be configured to fail.
type mockSink struct {
	name      string
	shouldErr bool
	sendCount int
}

func (m *mockSink) Name() string {
	return m.name
}

func (m *mockSink) Send(ctx context.Context, alert *models.AttackAlert) error {
	m.sendCount++
	if m.shouldErr {
		return errors.New("mock send error")
	}
	return nil
}

func (m *mockSink) Close() error {
	return nil
}

func testConfig() DispatcherConfig {
	return DispatcherConfig{
		MinConfidence: 0.75,
		Cooldown: CooldownConfig{
			Period:  time.Minute,
			Enabled: true,
		},
		RateLimit: RateLimitConfig{
			MaxPerWindow: 10,
			Window:       time.Minute,
			Enabled:      true,
		},
	}
}

func makeAlert(clientIP string, attackType models.AttackType, confidence float64) *models.AttackAlert {
	return &models.AttackAlert{
		Timestamp:  time.Now().UTC(),
		ClientIP:   clientIP,
		Type:       attackType,
		Endpoint:   "/admin",
		Confidence: confidence,
		Details:    "test alert",
	}
}

func TestDispatcherSkipsBelowThreshold(t *testing.T) {
	dispatcher := NewDispatcher(testConfig())
	sink := &mockSink{name: "webhook"}
	dispatcher.Register(sink)

	alert := makeAlert("10.0.0.1", models.AttackSuspiciousActivity, 0.60)
	if err := dispatcher.Dispatch(context.Background(), alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.sendCount != 0 {
		t.Errorf("send count = %d, want 0 for below-threshold alert", sink.sendCount)
	}
}

func TestDispatcherSendsToAllSinks(t *testing.T) {
	dispatcher := NewDispatcher(testConfig())
	first := &mockSink{name: "webhook"}
	second := &mockSink{name: "audit"}
	dispatcher.Register(first)
	dispatcher.Register(second)

	alert := makeAlert("10.0.0.1", models.AttackSQLInjection, 0.85)
	if err := dispatcher.Dispatch(context.Background(), alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.sendCount != 1 || second.sendCount != 1 {
		t.Errorf("send counts = %d, %d, want 1, 1", first.sendCount, second.sendCount)
	}

	stats := dispatcher.RateLimitStats()
	if stats.CurrentCount != 1 {
		t.Errorf("current count = %d, want 1", stats.CurrentCount)
	}
}

func TestDispatcherRefundsOnAllFailures(t *testing.T) {
	dispatcher := NewDispatcher(testConfig())
	failing := &mockSink{name: "failing", shouldErr: true}
	dispatcher.Register(failing)

	alert := makeAlert("10.0.0.1", models.AttackSQLInjection, 0.85)

	if err := dispatcher.Dispatch(context.Background(), alert); err == nil {
		t.Error("expected error from failing sink")
	}

	// Token refunded, cooldown cleared.
	stats := dispatcher.RateLimitStats()
	if stats.CurrentCount != 0 {
		t.Errorf("current count = %d, want 0 (token should be refunded)", stats.CurrentCount)
	}

	// The same alert can retry immediately.
	if err := dispatcher.Dispatch(context.Background(), alert); err == nil {
		t.Error("expected error from failing sink on retry")
	}
	if failing.sendCount != 2 {
		t.Errorf("send count = %d, want 2 (retry should not be suppressed)", failing.sendCount)
	}
}

func TestDispatcherKeepsTokenOnPartialSuccess(t *testing.T) {
	dispatcher := NewDispatcher(testConfig())
	failing := &mockSink{name: "failing", shouldErr: true}
	success := &mockSink{name: "success"}
	dispatcher.Register(failing)
	dispatcher.Register(success)

	alert := makeAlert("10.0.0.1", models.AttackSQLInjection, 0.85)

	if err := dispatcher.Dispatch(context.Background(), alert); err == nil {
		t.Error("expected error due to partial failure")
	}

	stats := dispatcher.RateLimitStats()
	if stats.CurrentCount != 1 {
		t.Errorf("current count = %d, want 1 (token kept on partial success)", stats.CurrentCount)
	}
}

func TestDispatcherCooldownSuppressesRepeats(t *testing.T) {
	dispatcher := NewDispatcher(testConfig())
	sink := &mockSink{name: "webhook"}
	dispatcher.Register(sink)

	alert := makeAlert("10.0.0.1", models.AttackSQLInjection, 0.85)

	if err := dispatcher.Dispatch(context.Background(), alert); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if err := dispatcher.Dispatch(context.Background(), alert); err != ErrSuppressed {
		t.Errorf("second dispatch err = %v, want ErrSuppressed", err)
	}
	if sink.sendCount != 1 {
		t.Errorf("send count = %d, want 1", sink.sendCount)
	}

	// A different client is a different cooldown key.
	other := makeAlert("10.0.0.2", models.AttackSQLInjection, 0.85)
	if err := dispatcher.Dispatch(context.Background(), other); err != nil {
		t.Errorf("other client dispatch: %v", err)
	}

	// So is a different attack type from the same client.
	otherType := makeAlert("10.0.0.1", models.AttackXSS, 0.80)
	if err := dispatcher.Dispatch(context.Background(), otherType); err != nil {
		t.Errorf("other type dispatch: %v", err)
	}
}

func TestDispatcherRateLimited(t *testing.T) {
	config := testConfig()
	config.RateLimit.MaxPerWindow = 1
	dispatcher := NewDispatcher(config)
	sink := &mockSink{name: "webhook"}
	dispatcher.Register(sink)

	first := makeAlert("10.0.0.1", models.AttackSQLInjection, 0.85)
	second := makeAlert("10.0.0.2", models.AttackXSS, 0.80)

	if err := dispatcher.Dispatch(context.Background(), first); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if err := dispatcher.Dispatch(context.Background(), second); err != ErrRateLimited {
		t.Errorf("second dispatch err = %v, want ErrRateLimited", err)
	}
	if sink.sendCount != 1 {
		t.Errorf("send count = %d, want 1", sink.sendCount)
	}
}

func TestDispatcherNoSinks(t *testing.T) {
	dispatcher := NewDispatcher(testConfig())

	alert := makeAlert("10.0.0.1", models.AttackSQLInjection, 0.85)
	if err := dispatcher.Dispatch(context.Background(), alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// No sinks means no token consumed.
	stats := dispatcher.RateLimitStats()
	if stats.CurrentCount != 0 {
		t.Errorf("current count = %d, want 0", stats.CurrentCount)
	}
}

func TestDispatchBatch(t *testing.T) {
	dispatcher := NewDispatcher(testConfig())
	sink := &mockSink{name: "webhook"}
	dispatcher.Register(sink)

	alerts := []models.AttackAlert{
		*makeAlert("10.0.0.1", models.AttackSQLInjection, 0.85),
		*makeAlert("10.0.0.1", models.AttackSQLInjection, 0.85), // cooldown duplicate
		*makeAlert("10.0.0.2", models.AttackBruteForce, 0.95),
		*makeAlert("10.0.0.3", models.AttackSuspiciousActivity, 0.60), // below threshold
	}

	sent := dispatcher.DispatchBatch(context.Background(), alerts)
	if sent != 2 {
		t.Errorf("sent = %d, want 2", sent)
	}
	if sink.sendCount != 2 {
		t.Errorf("send count = %d, want 2", sink.sendCount)
	}
}

func TestDispatcherRegisterUnregister(t *testing.T) {
	dispatcher := NewDispatcher(testConfig())
	sink := &mockSink{name: "webhook"}
	dispatcher.Register(sink)

	if _, ok := dispatcher.Get("webhook"); !ok {
		t.Error("sink should be registered")
	}
	if dispatcher.Len() != 1 {
		t.Errorf("len = %d, want 1", dispatcher.Len())
	}

	dispatcher.Unregister("webhook")
	if _, ok := dispatcher.Get("webhook"); ok {
		t.Error("sink should be unregistered")
	}
}

func TestDispatcherClose(t *testing.T) {
	dispatcher := NewDispatcher(testConfig())
	dispatcher.Register(&mockSink{name: "webhook"})

	if err := dispatcher.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if dispatcher.Len() != 0 {
		t.Errorf("len after close = %d, want 0", dispatcher.Len())
	}
}
