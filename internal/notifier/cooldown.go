package notifier

import (
	"sync"
	"time"

	"github.com/forenx/sentinel/internal/models"
)

// CooldownTracker suppresses repeat notifications for the same client
// and attack type. A batch upload from one attacking IP can produce
// hundreds of identical findings; only the first within the cooldown
// window goes out.
type CooldownTracker struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastSent map[string]time.Time
	enabled  bool
}

// CooldownConfig holds cooldown settings.
type CooldownConfig struct {
	Period  time.Duration // Suppression window per (client, attack type) (default: 10 minutes)
	Enabled bool          // Whether the cooldown is enabled (default: true)
}

// DefaultCooldownConfig returns default cooldown settings.
func DefaultCooldownConfig() CooldownConfig {
	return CooldownConfig{
		Period:  10 * time.Minute,
		Enabled: true,
	}
}

// maxCooldownEntries bounds the tracked key set; stale keys are pruned
// when the map grows past it.
const maxCooldownEntries = 4096

// NewCooldownTracker creates a cooldown tracker with the given configuration.
func NewCooldownTracker(config CooldownConfig) *CooldownTracker {
	if config.Period <= 0 {
		config.Period = 10 * time.Minute
	}
	return &CooldownTracker{
		cooldown: config.Period,
		lastSent: make(map[string]time.Time),
		enabled:  config.Enabled,
	}
}

// Allow reports whether the alert may be sent, recording the attempt
// when it is. Repeat alerts for the same client and attack type within
// the cooldown window are suppressed.
func (c *CooldownTracker) Allow(alert *models.AttackAlert) bool {
	if !c.enabled {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	key := cooldownKey(alert)

	if last, ok := c.lastSent[key]; ok && now.Sub(last) < c.cooldown {
		return false
	}

	if len(c.lastSent) >= maxCooldownEntries {
		c.prune(now)
	}
	c.lastSent[key] = now
	return true
}

// Forget clears the alert's cooldown entry.
// Call this when delivery fails after Allow() returned true.
func (c *CooldownTracker) Forget(alert *models.AttackAlert) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lastSent, cooldownKey(alert))
}

// Len returns the number of tracked keys.
func (c *CooldownTracker) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lastSent)
}

// prune drops entries past the cooldown window.
// Must be called with mutex held.
func (c *CooldownTracker) prune(now time.Time) {
	cutoff := now.Add(-c.cooldown)
	for key, last := range c.lastSent {
		if last.Before(cutoff) {
			delete(c.lastSent, key)
		}
	}
}

func cooldownKey(alert *models.AttackAlert) string {
	return alert.ClientIP + "|" + string(alert.Type)
}
