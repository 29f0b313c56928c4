package detect

import (
	"fmt"
	"strings"
	"time"

	"github.com/forenx/sentinel/internal/models"
)

// Thresholds for the statistical detectors. All comparisons against them
// are strict.
const (
	dosMinRequests      = 10
	dosRateThreshold    = 10.0 // requests per second
	exfilByteThreshold  = int64(10_000_000)
	bruteErrorThreshold = 10
	bruteWindow         = 5 * time.Minute
)

// EntryRule is the extension point for per-entry detection. Rules loaded
// from configuration implement it; alerts they emit join the built-in
// per-entry alerts before deduplication. Evaluate must be pure and must
// not panic on any entry; a rule that cannot evaluate an entry reports
// ok=false.
type EntryRule interface {
	Evaluate(entry *models.LogEntry) (models.AttackAlert, bool)
}

// Engine applies per-entry signature rules and cross-entry statistical
// detectors to an ordered batch of entries.
type Engine struct {
	signatures []signatureSet
}

// NewEngine creates a detection engine with the built-in rule set.
func NewEngine() *Engine {
	return &Engine{signatures: builtinSignatures}
}

// Analyze runs all detectors over the batch and returns the merged alert
// sequence: deduplicated per-entry alerts in batch order, then flooding,
// exfiltration and brute-force alerts. The result is deterministic for a
// given batch; callers wanting a different order re-sort themselves.
func (e *Engine) Analyze(entries []models.LogEntry) []models.AttackAlert {
	return e.AnalyzeWithRules(entries, nil)
}

// AnalyzeWithRules is Analyze plus extra per-entry rules (custom rules
// from configuration). Extra-rule alerts share the per-entry
// deduplication key space.
func (e *Engine) AnalyzeWithRules(entries []models.LogEntry, extra []EntryRule) []models.AttackAlert {
	alerts := make([]models.AttackAlert, 0)

	for i := range entries {
		alerts = append(alerts, e.detectEntry(&entries[i], extra)...)
	}
	alerts = dedupe(alerts)

	groups := groupByClient(entries)
	alerts = append(alerts, e.detectFlooding(groups)...)
	alerts = append(alerts, e.detectExfiltration(groups)...)
	alerts = append(alerts, e.detectBruteForce(groups)...)

	return alerts
}

// detectEntry runs every per-entry rule against one entry. A single
// entry can trigger multiple categories at once.
func (e *Engine) detectEntry(entry *models.LogEntry, extra []EntryRule) []models.AttackAlert {
	var alerts []models.AttackAlert
	target := entry.RequestTarget()

	for i := range e.signatures {
		sig := &e.signatures[i]
		if sig.matches(target) {
			alerts = append(alerts, newAlert(entry, sig.attack, sig.confidence, sig.details))
		}
	}

	if entry.UserAgent != "" && suspiciousUserAgent(entry.UserAgent) {
		alerts = append(alerts, newAlert(entry, models.AttackScanning, ruleConfidence["suspicious_ua"],
			fmt.Sprintf("Suspicious user agent detected: %s", truncate(entry.UserAgent, 50))))
	}

	lowerPath := strings.ToLower(entry.Endpoint)
	if containsAny(lowerPath, adminPaths) {
		alerts = append(alerts, newAlert(entry, models.AttackSuspiciousActivity, ruleConfidence["admin_probe"],
			"Administrative path probe detected"))
	}
	if containsAny(lowerPath, sensitiveTokens) {
		alerts = append(alerts, newAlert(entry, models.AttackExploitAttempt, ruleConfidence["sensitive_file"],
			"Sensitive file access attempt detected"))
	}

	for _, rule := range extra {
		if alert, ok := rule.Evaluate(entry); ok {
			alerts = append(alerts, alert)
		}
	}

	return alerts
}

// dedupKey collapses repeated probes: same client, same category, same
// path.
type dedupKey struct {
	ip       string
	attack   models.AttackType
	endpoint string
}

// dedupe keeps the first alert in batch order for each key.
func dedupe(alerts []models.AttackAlert) []models.AttackAlert {
	seen := make(map[dedupKey]struct{}, len(alerts))
	out := alerts[:0]
	for _, a := range alerts {
		k := dedupKey{ip: a.ClientIP, attack: a.Type, endpoint: a.Endpoint}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}

// clientBatch is one client's entries in batch order. Groups are built in
// first-appearance order so detector output never depends on map
// iteration.
type clientBatch struct {
	ip      string
	entries []*models.LogEntry
}

func groupByClient(entries []models.LogEntry) []*clientBatch {
	index := make(map[string]*clientBatch)
	var order []*clientBatch

	for i := range entries {
		entry := &entries[i]
		g, ok := index[entry.ClientIP]
		if !ok {
			g = &clientBatch{ip: entry.ClientIP}
			index[entry.ClientIP] = g
			order = append(order, g)
		}
		g.entries = append(g.entries, entry)
	}

	return order
}

// detectFlooding emits one DOS alert per client whose request rate over
// its full timestamp span exceeds dosRateThreshold. Spans under one
// second count as one second, so a qualifying client needs strictly more
// than ten requests inside a single second.
func (e *Engine) detectFlooding(groups []*clientBatch) []models.AttackAlert {
	var alerts []models.AttackAlert

	for _, g := range groups {
		if len(g.entries) < dosMinRequests {
			continue
		}

		first, last := timeBounds(g.entries)
		span := last.Sub(first).Seconds()
		denom := span
		if denom < 1 {
			denom = 1
		}

		rate := float64(len(g.entries)) / denom
		if rate <= dosRateThreshold {
			continue
		}

		rep := g.entries[0]
		alerts = append(alerts, newAlert(rep, models.AttackDOS, ruleConfidence["dos"],
			fmt.Sprintf("High request rate detected: %d requests at %.1f req/s", len(g.entries), rate)))
	}

	return alerts
}

// detectExfiltration emits one alert per client whose summed response
// bytes across the batch exceed exfilByteThreshold.
func (e *Engine) detectExfiltration(groups []*clientBatch) []models.AttackAlert {
	var alerts []models.AttackAlert

	for _, g := range groups {
		var total int64
		for _, entry := range g.entries {
			total += entry.BytesSent
		}
		if total <= exfilByteThreshold {
			continue
		}

		rep := g.entries[0]
		alerts = append(alerts, newAlert(rep, models.AttackDataExfiltration, ruleConfidence["exfiltration"],
			fmt.Sprintf("Large data transfer detected: %s", FormatBytes(total))))
	}

	return alerts
}

// detectBruteForce emits one alert per client with bruteErrorThreshold or
// more 401/403/404 responses inside a window strictly under bruteWindow.
// The alert points at the endpoint that collected the most errors from
// that client; ties resolve to the endpoint seen first.
func (e *Engine) detectBruteForce(groups []*clientBatch) []models.AttackAlert {
	var alerts []models.AttackAlert

	for _, g := range groups {
		var errEntries []*models.LogEntry
		for _, entry := range g.entries {
			switch entry.Status {
			case 401, 403, 404:
				errEntries = append(errEntries, entry)
			}
		}
		if len(errEntries) < bruteErrorThreshold {
			continue
		}

		first, last := timeBounds(errEntries)
		span := last.Sub(first)
		if span >= bruteWindow {
			continue
		}

		counts := make(map[string]int, len(errEntries))
		var endpointOrder []string
		for _, entry := range errEntries {
			if _, ok := counts[entry.Endpoint]; !ok {
				endpointOrder = append(endpointOrder, entry.Endpoint)
			}
			counts[entry.Endpoint]++
		}

		top := endpointOrder[0]
		for _, ep := range endpointOrder[1:] {
			if counts[ep] > counts[top] {
				top = ep
			}
		}

		var rep *models.LogEntry
		for _, entry := range errEntries {
			if entry.Endpoint == top {
				rep = entry
				break
			}
		}

		alerts = append(alerts, newAlert(rep, models.AttackBruteForce, ruleConfidence["brute_force"],
			fmt.Sprintf("Brute force attempt: %d errors in %d minutes", len(errEntries), int(span/time.Minute))))
	}

	return alerts
}

// newAlert builds an alert from its triggering or representative entry.
func newAlert(entry *models.LogEntry, attack models.AttackType, confidence float64, details string) models.AttackAlert {
	return models.AttackAlert{
		Timestamp:  entry.Timestamp,
		ClientIP:   entry.ClientIP,
		Type:       attack,
		Endpoint:   entry.Endpoint,
		UserAgent:  entry.UserAgent,
		StatusCode: entry.Status,
		Confidence: confidence,
		Details:    details,
		RawSample:  models.TruncateSample(entry.Raw),
	}
}

func timeBounds(entries []*models.LogEntry) (first, last time.Time) {
	first, last = entries[0].Timestamp, entries[0].Timestamp
	for _, entry := range entries[1:] {
		if entry.Timestamp.Before(first) {
			first = entry.Timestamp
		}
		if entry.Timestamp.After(last) {
			last = entry.Timestamp
		}
	}
	return first, last
}

// FormatBytes renders a byte count with binary units and two decimals.
func FormatBytes(n int64) string {
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if size < 1024 {
			return fmt.Sprintf("%.2f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.2f PB", size)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
