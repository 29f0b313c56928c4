// Package detect runs pattern and statistical attack detection over
// parsed access-log batches.
//
// Detection is a pure transformation: the engine holds only immutable,
// shared-read-only pattern tables, keeps no state between calls, and
// yields identical output for identical input. Independent batches may be
// analyzed concurrently.
package detect

import (
	"regexp"
	"strings"

	"github.com/forenx/sentinel/internal/models"
)

// ruleConfidence fixes the certainty constant for every built-in rule.
// Confidences are static configuration, not computed probabilities.
var ruleConfidence = map[string]float64{
	"sql_injection":   0.85,
	"xss":             0.80,
	"path_traversal":  0.90,
	"common_exploits": 0.75,
	"suspicious_ua":   0.70,
	"admin_probe":     0.60,
	"sensitive_file":  0.75,
	"dos":             0.90,
	"exfiltration":    0.85,
	"brute_force":     0.95,
}

// signatureSet is one per-entry pattern rule: a category plus the
// payload idioms that imply it.
type signatureSet struct {
	attack     models.AttackType
	confidence float64
	details    string
	patterns   []*regexp.Regexp
}

func (s *signatureSet) matches(text string) bool {
	for _, p := range s.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// compileAll compiles signature patterns case-insensitively.
func compileAll(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+p))
	}
	return compiled
}

// builtinSignatures are the fixed signature rules, in evaluation order.
var builtinSignatures = []signatureSet{
	{
		attack:     models.AttackSQLInjection,
		confidence: ruleConfidence["sql_injection"],
		details:    "SQL injection pattern detected in request",
		patterns: compileAll([]string{
			`union\s+select`,
			`sleep\s*\(\s*\d+\s*\)`,
			`benchmark\s*\(.*\)`,
			`(%27)|(')|(--)`,
			`/\*.*\*/`,
			`\bor\b.*=.*\bor\b`,
			`exec\s*\(.*\)`,
			`insert\s+into`,
			`drop\s+table`,
			`select\s+.*from`,
		}),
	},
	{
		attack:     models.AttackXSS,
		confidence: ruleConfidence["xss"],
		details:    "Cross-site scripting pattern detected",
		patterns: compileAll([]string{
			`<script.*?>.*?</script>`,
			`on\w+\s*=`,
			`javascript:`,
			`vbscript:`,
			`alert\s*\(.*\)`,
			`document\.\w+`,
			`window\.location`,
			`eval\s*\(.*\)`,
		}),
	},
	{
		attack:     models.AttackPathTraversal,
		confidence: ruleConfidence["path_traversal"],
		details:    "Path traversal attempt detected",
		patterns: compileAll([]string{
			`\.\./`,
			`\.\.\\`,
			`etc/passwd`,
			`win\.ini`,
			`boot\.ini`,
			`/proc/self/`,
			`\.\.%2f`,
			`\.\.%5c`,
		}),
	},
	{
		attack:     models.AttackExploitAttempt,
		confidence: ruleConfidence["common_exploits"],
		details:    "Common exploit pattern detected",
		patterns: compileAll([]string{
			`phpinfo\(\)`,
			`\.env`,
			`\.git/config`,
			`\.DS_Store`,
			`wp-config\.php`,
			`config\.json`,
			`\.bak$`,
			`\.old$`,
		}),
	},
}

// botUserAgents are automation/tooling tokens matched as lowercase
// substrings of the user agent. An empty or absent user agent is not
// suspicious by itself.
var botUserAgents = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget",
	"python-requests", "java", "go-http-client", "node-fetch",
	"apache-httpclient", "okhttp", "libwww-perl", "sqlmap",
}

// adminPaths flag administrative interface probes.
var adminPaths = []string{"/admin", "/wp-admin", "/administrator"}

// sensitiveTokens flag access attempts on secrets and config material.
var sensitiveTokens = []string{".env", ".git", "config.", "password"}

func suspiciousUserAgent(ua string) bool {
	lower := strings.ToLower(ua)
	for _, token := range botUserAgents {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func containsAny(lower string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
