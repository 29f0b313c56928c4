package health

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"
)

// checkTimeout bounds how long a single health check may run.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe for a backing dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Handler serves liveness and readiness endpoints.
type Handler struct {
	mu        sync.RWMutex
	checkers  []Checker
	startedAt time.Time
	version   string
}

// NewHandler creates a health handler reporting the given version.
func NewHandler(version string) *Handler {
	return &Handler{
		startedAt: time.Now(),
		version:   version,
	}
}

// Register adds a checker to the readiness probe.
func (h *Handler) Register(c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, c)
}

func (h *Handler) runChecks(ctx context.Context) (map[string]string, bool) {
	h.mu.RLock()
	checkers := make([]Checker, len(h.checkers))
	copy(checkers, h.checkers)
	h.mu.RUnlock()

	results := make(map[string]string, len(checkers))
	healthy := true
	for _, c := range checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(cctx)
		cancel()
		if err != nil {
			results[c.Name()] = "error: " + err.Error()
			healthy = false
			continue
		}
		results[c.Name()] = "ok"
	}
	return results, healthy
}

// Health reports overall status, version, uptime and per-dependency
// check results.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.runChecks(r.Context())

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	resp := map[string]any{
		"status":         status,
		"version":        h.version,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"checks":         checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("health encode error: %v", err)
	}
}

// Live always returns 200 while the process is running.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"alive"}`))
}

// Ready returns 200 only when every registered dependency passes its
// check.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.runChecks(r.Context())

	code := http.StatusOK
	status := "ready"
	if !healthy {
		code = http.StatusServiceUnavailable
		status = "not ready"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]any{"status": status, "checks": checks}); err != nil {
		log.Printf("ready encode error: %v", err)
	}
}
