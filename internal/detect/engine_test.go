package detect

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/forenx/sentinel/internal/models"
	"github.com/forenx/sentinel/internal/parser"
)

var baseTime = time.Date(2023, 10, 10, 12, 0, 0, 0, time.UTC)

func mkEntry(ip string, ts time.Time, endpoint, query, ua string, status int, bytes int64) models.LogEntry {
	target := endpoint
	if query != "" {
		target += "?" + query
	}
	return models.LogEntry{
		Raw:         fmt.Sprintf(`%s - - [10/Oct/2023:12:00:00 +0000] "GET %s HTTP/1.1" %d %d "-" "%s"`, ip, target, status, bytes, ua),
		Timestamp:   ts,
		ClientIP:    ip,
		Method:      "GET",
		Endpoint:    endpoint,
		QueryParams: query,
		Protocol:    "HTTP/1.1",
		Status:      status,
		BytesSent:   bytes,
		UserAgent:   ua,
	}
}

func alertsOfType(alerts []models.AttackAlert, t models.AttackType) []models.AttackAlert {
	var out []models.AttackAlert
	for _, a := range alerts {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

func TestAnalyze_InjectionExample(t *testing.T) {
	line := `10.0.0.1 - - [10/Oct/2023:13:55:36 +0000] "GET /admin?id=1' OR '1'='1 HTTP/1.1" 200 512 "-" "sqlmap/1.0"`

	entries, stats := parser.ParseAccessLog(line, models.FormatCombined)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d (stats %+v)", len(entries), stats)
	}

	entry := entries[0]
	if entry.Status != 200 {
		t.Errorf("Status = %d, want 200", entry.Status)
	}
	if entry.Endpoint != "/admin" {
		t.Errorf("Endpoint = %q, want /admin", entry.Endpoint)
	}
	if entry.QueryParams != "id=1' OR '1'='1" {
		t.Errorf("QueryParams = %q", entry.QueryParams)
	}

	alerts := NewEngine().Analyze(entries)
	if len(alerts) < 3 {
		t.Fatalf("expected at least 3 alerts, got %d: %+v", len(alerts), alerts)
	}

	wantConfidence := map[models.AttackType]float64{
		models.AttackSQLInjection:       0.85,
		models.AttackScanning:           0.70,
		models.AttackSuspiciousActivity: 0.60,
	}
	for attack, confidence := range wantConfidence {
		matched := alertsOfType(alerts, attack)
		if len(matched) != 1 {
			t.Fatalf("expected exactly one %s alert, got %d", attack, len(matched))
		}
		a := matched[0]
		if a.Confidence != confidence {
			t.Errorf("%s confidence = %v, want %v", attack, a.Confidence, confidence)
		}
		if a.ClientIP != "10.0.0.1" {
			t.Errorf("%s client = %q", attack, a.ClientIP)
		}
		if a.Endpoint != "/admin" {
			t.Errorf("%s endpoint = %q, want /admin", attack, a.Endpoint)
		}
		if a.RawSample == "" || len(a.RawSample) > models.RawSampleLimit {
			t.Errorf("%s raw sample invalid: %q", attack, a.RawSample)
		}
	}
}

func TestAnalyze_SignatureCategories(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		query    string
		want     models.AttackType
	}{
		{"union select", "/products", "id=1 UNION SELECT password FROM users", models.AttackSQLInjection},
		{"sleep probe", "/item", "id=1;sleep(5)", models.AttackSQLInjection},
		{"script tag", "/search", "q=<script>alert(1)</script>", models.AttackXSS},
		{"event handler", "/page", "name=x onerror=alert(1)", models.AttackXSS},
		{"dotdot slash", "/files", "path=../../etc/passwd", models.AttackPathTraversal},
		{"encoded traversal", "/files", "path=..%2f..%2fsecret", models.AttackPathTraversal},
		{"phpinfo", "/test.php", "x=phpinfo()", models.AttackExploitAttempt},
		{"bak suffix", "/backup.bak", "", models.AttackExploitAttempt},
	}

	engine := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := mkEntry("192.0.2.1", baseTime, tt.endpoint, tt.query, "Mozilla/5.0", 200, 100)
			alerts := engine.Analyze([]models.LogEntry{entry})
			if len(alertsOfType(alerts, tt.want)) == 0 {
				t.Errorf("expected a %s alert, got %+v", tt.want, alerts)
			}
		})
	}
}

func TestAnalyze_CleanTrafficQuiet(t *testing.T) {
	entries := []models.LogEntry{
		mkEntry("192.0.2.1", baseTime, "/index.html", "", "Mozilla/5.0 (Windows NT 10.0)", 200, 1234),
		mkEntry("192.0.2.2", baseTime.Add(time.Second), "/products", "page=2", "Mozilla/5.0 (Macintosh)", 200, 888),
		mkEntry("192.0.2.3", baseTime.Add(2*time.Second), "/about", "", "", 304, 0),
	}

	alerts := NewEngine().Analyze(entries)
	if len(alerts) != 0 {
		t.Errorf("clean traffic should raise no alerts, got %+v", alerts)
	}
}

func TestAnalyze_SuspiciousUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want bool
	}{
		{"curl", "curl/7.64.1", true},
		{"sqlmap", "sqlmap/1.7#stable", true},
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1)", true},
		{"python requests", "python-requests/2.28", true},
		{"browser", "Mozilla/5.0 (X11; Linux x86_64) Firefox/115.0", false},
		{"empty is not suspicious", "", false},
	}

	engine := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := mkEntry("192.0.2.9", baseTime, "/page", "", tt.ua, 200, 10)
			got := len(alertsOfType(engine.Analyze([]models.LogEntry{entry}), models.AttackScanning)) > 0
			if got != tt.want {
				t.Errorf("scanning alert = %v, want %v for UA %q", got, tt.want, tt.ua)
			}
		})
	}
}

func TestAnalyze_PathProbes(t *testing.T) {
	engine := NewEngine()

	entry := mkEntry("192.0.2.9", baseTime, "/ADMIN/settings", "", "", 200, 10)
	alerts := engine.Analyze([]models.LogEntry{entry})
	if len(alertsOfType(alerts, models.AttackSuspiciousActivity)) != 1 {
		t.Errorf("admin probe should be case-insensitive, got %+v", alerts)
	}

	entry = mkEntry("192.0.2.9", baseTime, "/.env", "", "", 404, 10)
	alerts = engine.Analyze([]models.LogEntry{entry})
	if len(alertsOfType(alerts, models.AttackExploitAttempt)) == 0 {
		t.Errorf(".env should raise an exploit-attempt alert, got %+v", alerts)
	}
}

func TestAnalyze_DedupInvariant(t *testing.T) {
	var entries []models.LogEntry
	for i := 0; i < 5; i++ {
		entries = append(entries, mkEntry("10.0.0.1", baseTime.Add(time.Duration(i)*time.Minute), "/admin", "", "", 200, 10))
	}
	entries = append(entries, mkEntry("10.0.0.1", baseTime, "/administrator", "", "", 200, 10))
	entries = append(entries, mkEntry("10.0.0.2", baseTime, "/admin", "", "", 200, 10))

	alerts := NewEngine().Analyze(entries)

	seen := make(map[string]bool)
	for _, a := range alerts {
		key := a.ClientIP + "|" + string(a.Type) + "|" + a.Endpoint
		if seen[key] {
			t.Errorf("duplicate alert key %s", key)
		}
		seen[key] = true
	}

	susp := alertsOfType(alerts, models.AttackSuspiciousActivity)
	if len(susp) != 3 {
		t.Errorf("expected 3 deduped probe alerts (2 clients x /admin + /administrator), got %d", len(susp))
	}
	if susp[0].Timestamp != baseTime {
		t.Errorf("dedup should keep the first occurrence in batch order")
	}
}

func TestAnalyze_Idempotence(t *testing.T) {
	var entries []models.LogEntry
	for i := 0; i < 30; i++ {
		ip := fmt.Sprintf("10.0.0.%d", i%3)
		entries = append(entries, mkEntry(ip, baseTime.Add(time.Duration(i)*time.Second), fmt.Sprintf("/page%d", i%7), "q='", "curl/7.0", 401, 500_000))
	}

	engine := NewEngine()
	first := engine.Analyze(entries)
	second := engine.Analyze(entries)

	if len(first) != len(second) {
		t.Fatalf("alert counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("alert %d differs between runs:\n%+v\n%+v", i, first[i], second[i])
		}
	}
}

func TestAnalyze_ConfidenceInvariant(t *testing.T) {
	var entries []models.LogEntry
	for i := 0; i < 50; i++ {
		entries = append(entries, mkEntry("10.1.0.1", baseTime, "/admin", "x='", "sqlmap", 401, 300_000))
		entries = append(entries, mkEntry("10.1.0.2", baseTime.Add(time.Duration(i)*time.Second), "/data", "", "", 200, 400_000))
	}

	for _, a := range NewEngine().Analyze(entries) {
		if a.Confidence < 0 || a.Confidence > 1 {
			t.Errorf("confidence %v out of range for %s", a.Confidence, a.Type)
		}
	}
}

func TestDetectFlooding_Boundaries(t *testing.T) {
	engine := NewEngine()

	tests := []struct {
		name      string
		requests  int
		span      time.Duration
		wantAlert bool
	}{
		{"nine requests never trigger", 9, 0, false},
		{"ten in zero seconds is exactly 10 req/s", 10, 0, false},
		{"eleven in zero seconds exceeds", 11, 0, true},
		{"hundred over twenty seconds is 5 req/s", 100, 20 * time.Second, false},
		{"hundred over nine seconds exceeds", 100, 9 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var entries []models.LogEntry
			for i := 0; i < tt.requests; i++ {
				var offset time.Duration
				if tt.requests > 1 {
					offset = tt.span * time.Duration(i) / time.Duration(tt.requests-1)
				}
				entries = append(entries, mkEntry("198.51.100.1", baseTime.Add(offset), "/", "", "", 200, 10))
			}

			got := alertsOfType(engine.Analyze(entries), models.AttackDOS)
			if tt.wantAlert && len(got) != 1 {
				t.Fatalf("expected one flooding alert, got %d", len(got))
			}
			if !tt.wantAlert && len(got) != 0 {
				t.Fatalf("expected no flooding alert, got %+v", got)
			}
			if tt.wantAlert {
				if got[0].Confidence != 0.90 {
					t.Errorf("confidence = %v, want 0.90", got[0].Confidence)
				}
				if !got[0].Timestamp.Equal(baseTime) {
					t.Errorf("representative should be the client's first entry")
				}
			}
		})
	}
}

func TestDetectExfiltration_Boundaries(t *testing.T) {
	engine := NewEngine()

	build := func(total int64) []models.LogEntry {
		half := total / 2
		return []models.LogEntry{
			mkEntry("203.0.113.5", baseTime, "/dump1", "", "", 200, half),
			mkEntry("203.0.113.5", baseTime.Add(time.Minute), "/dump2", "", "", 200, total-half),
		}
	}

	if got := alertsOfType(engine.Analyze(build(10_000_000)), models.AttackDataExfiltration); len(got) != 0 {
		t.Errorf("exactly 10,000,000 bytes must not trigger, got %+v", got)
	}

	got := alertsOfType(engine.Analyze(build(10_000_001)), models.AttackDataExfiltration)
	if len(got) != 1 {
		t.Fatalf("10,000,001 bytes must trigger, got %d alerts", len(got))
	}
	a := got[0]
	if a.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85", a.Confidence)
	}
	if a.Endpoint != "/dump1" {
		t.Errorf("representative should be the client's first entry, got %q", a.Endpoint)
	}
	if !strings.Contains(a.Details, "9.54 MB") {
		t.Errorf("details should carry a humanized byte count, got %q", a.Details)
	}
}

func TestDetectBruteForce_Boundaries(t *testing.T) {
	engine := NewEngine()

	build := func(count int, span time.Duration, status int) []models.LogEntry {
		var entries []models.LogEntry
		for i := 0; i < count; i++ {
			var offset time.Duration
			if count > 1 {
				offset = span * time.Duration(i) / time.Duration(count-1)
			}
			entries = append(entries, mkEntry("198.51.100.77", baseTime.Add(offset), "/login", "", "", status, 10))
		}
		return entries
	}

	if got := alertsOfType(engine.Analyze(build(9, time.Minute, 401)), models.AttackBruteForce); len(got) != 0 {
		t.Errorf("nine errors never trigger, got %+v", got)
	}
	if got := alertsOfType(engine.Analyze(build(10, 5*time.Minute, 401)), models.AttackBruteForce); len(got) != 0 {
		t.Errorf("a span of exactly five minutes must not trigger, got %+v", got)
	}
	if got := alertsOfType(engine.Analyze(build(10, 5*time.Minute, 200)), models.AttackBruteForce); len(got) != 0 {
		t.Errorf("successful responses are not auth errors, got %+v", got)
	}

	got := alertsOfType(engine.Analyze(build(10, 5*time.Minute-time.Second, 403)), models.AttackBruteForce)
	if len(got) != 1 {
		t.Fatalf("ten errors under five minutes must trigger, got %d", len(got))
	}
	if got[0].Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", got[0].Confidence)
	}
	if !strings.Contains(got[0].Details, "10 errors") || !strings.Contains(got[0].Details, "4 minutes") {
		t.Errorf("details should carry error count and window, got %q", got[0].Details)
	}
}

func TestDetectBruteForce_TopEndpointTieBreak(t *testing.T) {
	var entries []models.LogEntry
	for i := 0; i < 6; i++ {
		entries = append(entries, mkEntry("198.51.100.8", baseTime.Add(time.Duration(i)*time.Second), "/login", "", "", 401, 10))
		entries = append(entries, mkEntry("198.51.100.8", baseTime.Add(time.Duration(i)*time.Second), "/api/token", "", "", 403, 10))
	}

	got := alertsOfType(NewEngine().Analyze(entries), models.AttackBruteForce)
	if len(got) != 1 {
		t.Fatalf("expected one alert for the client, got %d", len(got))
	}
	if got[0].Endpoint != "/login" {
		t.Errorf("tie should resolve to the first-encountered endpoint, got %q", got[0].Endpoint)
	}
	if !strings.Contains(got[0].Details, "12 errors") {
		t.Errorf("error count should cover all qualifying endpoints, got %q", got[0].Details)
	}
}

func TestAnalyze_Ordering(t *testing.T) {
	var entries []models.LogEntry
	// Injection probe from the flooding client so the per-entry alert and
	// every statistical alert coexist.
	entries = append(entries, mkEntry("10.9.9.9", baseTime, "/search", "q='", "", 401, 2_000_000))
	for i := 1; i < 12; i++ {
		entries = append(entries, mkEntry("10.9.9.9", baseTime, "/login", "", "", 401, 2_000_000))
	}

	alerts := NewEngine().Analyze(entries)

	indexOf := func(t models.AttackType) int {
		for i, a := range alerts {
			if a.Type == t {
				return i
			}
		}
		return -1
	}

	sqli := indexOf(models.AttackSQLInjection)
	dos := indexOf(models.AttackDOS)
	exfil := indexOf(models.AttackDataExfiltration)
	brute := indexOf(models.AttackBruteForce)

	if sqli == -1 || dos == -1 || exfil == -1 || brute == -1 {
		t.Fatalf("missing expected alerts: sqli=%d dos=%d exfil=%d brute=%d (alerts %+v)", sqli, dos, exfil, brute, alerts)
	}
	if !(sqli < dos && dos < exfil && exfil < brute) {
		t.Errorf("ordering wrong: sqli=%d dos=%d exfil=%d brute=%d", sqli, dos, exfil, brute)
	}
}

func TestAnalyze_EmptyBatch(t *testing.T) {
	alerts := NewEngine().Analyze(nil)
	if alerts == nil {
		t.Fatal("empty batch should yield an empty, non-nil alert slice")
	}
	if len(alerts) != 0 {
		t.Errorf("expected no alerts, got %+v", alerts)
	}
}

type methodRule struct {
	method string
}

func (r *methodRule) Evaluate(entry *models.LogEntry) (models.AttackAlert, bool) {
	if entry.Method != r.method {
		return models.AttackAlert{}, false
	}
	return models.AttackAlert{
		Timestamp:  entry.Timestamp,
		ClientIP:   entry.ClientIP,
		Type:       models.AttackSuspiciousActivity,
		Endpoint:   entry.Endpoint,
		Confidence: 0.65,
		Details:    "disallowed method",
	}, true
}

func TestAnalyzeWithRules_CustomRuleJoinsDedup(t *testing.T) {
	entries := []models.LogEntry{
		mkEntry("10.4.4.4", baseTime, "/admin", "", "", 200, 10),
	}

	// The admin probe and the custom rule emit the same (ip, type,
	// endpoint) key; dedup keeps the built-in alert that ran first.
	alerts := NewEngine().AnalyzeWithRules(entries, []EntryRule{&methodRule{method: "GET"}})
	susp := alertsOfType(alerts, models.AttackSuspiciousActivity)
	if len(susp) != 1 {
		t.Fatalf("expected one deduped alert, got %d", len(susp))
	}
	if susp[0].Confidence != 0.60 {
		t.Errorf("built-in alert should win dedup, got confidence %v", susp[0].Confidence)
	}

	// On a non-admin path only the custom rule fires.
	entries = []models.LogEntry{mkEntry("10.4.4.4", baseTime, "/data", "", "", 200, 10)}
	alerts = NewEngine().AnalyzeWithRules(entries, []EntryRule{&methodRule{method: "GET"}})
	susp = alertsOfType(alerts, models.AttackSuspiciousActivity)
	if len(susp) != 1 || susp[0].Confidence != 0.65 {
		t.Errorf("custom rule alert missing: %+v", alerts)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0.00 B"},
		{512, "512.00 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{10_000_001, "9.54 MB"},
		{1 << 30, "1.00 GB"},
		{1 << 40, "1.00 TB"},
		{1 << 50, "1.00 PB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
