// Package notifier delivers attack alerts to external sinks.
package notifier

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/forenx/sentinel/internal/metrics"
	"github.com/forenx/sentinel/internal/models"
)

// Notifier is the interface for all notification sinks.
type Notifier interface {
	// Name returns the sink name (e.g., "webhook").
	Name() string
	// Send delivers one alert.
	Send(ctx context.Context, alert *models.AttackAlert) error
	// Close releases any resources.
	Close() error
}

// Dispatcher fans alerts out to all registered sinks, gated by a
// minimum-confidence threshold, a per-(client, attack type) cooldown,
// and a sliding-window rate limiter.
type Dispatcher struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier

	minConfidence float64
	rateLimiter   *RateLimiter
	cooldown      *CooldownTracker
}

// DispatcherConfig configures dispatch gating.
type DispatcherConfig struct {
	// MinConfidence drops alerts below this confidence before any
	// other gating. Zero sends everything.
	MinConfidence float64

	// Cooldown suppresses repeat alerts for the same client and attack
	// type within a window.
	Cooldown CooldownConfig

	// RateLimit caps total deliveries per window.
	RateLimit RateLimitConfig
}

// DefaultDispatcherConfig returns the default gating settings.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MinConfidence: 0.75,
		Cooldown:      DefaultCooldownConfig(),
		RateLimit:     DefaultRateLimitConfig(),
	}
}

// NewDispatcher creates a dispatcher with the given gating configuration.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		notifiers:     make(map[string]Notifier),
		minConfidence: config.MinConfidence,
		rateLimiter:   NewRateLimiter(config.RateLimit),
		cooldown:      NewCooldownTracker(config.Cooldown),
	}
}

// Register adds a sink to the dispatcher.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Name()] = n
}

// Unregister removes a sink from the dispatcher.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.notifiers, name)
}

// Get returns a sink by name.
func (d *Dispatcher) Get(name string) (Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.notifiers[name]
	return n, ok
}

// Len returns the number of registered sinks.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.notifiers)
}

// ErrRateLimited is returned when a notification is dropped due to rate limiting.
var ErrRateLimited = fmt.Errorf("notification rate limited")

// ErrSuppressed is returned when a notification is dropped by the cooldown.
var ErrSuppressed = fmt.Errorf("notification suppressed by cooldown")

// Dispatch sends one alert to every registered sink. Alerts below the
// confidence threshold are silently skipped. Returns ErrSuppressed or
// ErrRateLimited when gating drops the alert. When every sink fails,
// the consumed rate-limit token is refunded and the cooldown entry
// cleared so the next occurrence can retry.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.AttackAlert) error {
	if alert.Confidence < d.minConfidence {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.notifiers) == 0 {
		return nil
	}

	if d.cooldown != nil && !d.cooldown.Allow(alert) {
		metrics.NotificationsTotal.WithLabelValues("suppressed").Inc()
		return ErrSuppressed
	}

	if d.rateLimiter != nil && !d.rateLimiter.Allow() {
		metrics.NotificationsTotal.WithLabelValues("suppressed").Inc()
		return ErrRateLimited
	}

	var errs []error
	sent := 0
	for name, n := range d.notifiers {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		} else {
			sent++
		}
	}

	if sent == 0 {
		// Nothing went out; give the token and the cooldown slot back.
		if d.rateLimiter != nil {
			d.rateLimiter.Release()
		}
		if d.cooldown != nil {
			d.cooldown.Forget(alert)
		}
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("notification errors: %v", errs)
	}

	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %v", errs)
	}
	return nil
}

// DispatchBatch sends a batch of alerts, logging failures and
// continuing. Delivery problems never propagate to the caller; the
// return value is the number of alerts that reached at least one sink.
func (d *Dispatcher) DispatchBatch(ctx context.Context, alerts []models.AttackAlert) int {
	if d.Len() == 0 {
		return 0
	}

	sent := 0
	for i := range alerts {
		err := d.Dispatch(ctx, &alerts[i])
		switch {
		case err == nil:
			if alerts[i].Confidence >= d.minConfidence {
				sent++
			}
		case err == ErrRateLimited, err == ErrSuppressed:
			// Counted by the gate; nothing to log per alert.
		default:
			log.Printf("notifier: dispatch %s alert for %s: %v",
				alerts[i].Type, alerts[i].ClientIP, err)
		}
	}
	return sent
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	if d.rateLimiter == nil {
		return RateLimitStats{}
	}
	return d.rateLimiter.Stats()
}

// Close closes all registered sinks.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, n := range d.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	d.notifiers = make(map[string]Notifier)

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
