package models

import (
	"time"
)

// AttackType is the closed set of attack categories the detection engine
// can emit. New categories require a new constant here; handlers switch on
// the type and must stay exhaustive.
type AttackType string

const (
	AttackSQLInjection       AttackType = "SQL_INJECTION"
	AttackXSS                AttackType = "XSS"
	AttackPathTraversal      AttackType = "PATH_TRAVERSAL"
	AttackDOS                AttackType = "DOS"
	AttackBruteForce         AttackType = "BRUTE_FORCE"
	AttackDataExfiltration   AttackType = "DATA_EXFILTRATION"
	AttackScanning           AttackType = "SCANNING"
	AttackExploitAttempt     AttackType = "EXPLOIT_ATTEMPT"
	AttackSuspiciousActivity AttackType = "SUSPICIOUS_ACTIVITY"
)

// AttackTypes lists every category in a stable order.
var AttackTypes = []AttackType{
	AttackSQLInjection,
	AttackXSS,
	AttackPathTraversal,
	AttackDOS,
	AttackBruteForce,
	AttackDataExfiltration,
	AttackScanning,
	AttackExploitAttempt,
	AttackSuspiciousActivity,
}

// DisplayName returns the human-readable category name.
func (t AttackType) DisplayName() string {
	switch t {
	case AttackSQLInjection:
		return "SQL Injection"
	case AttackXSS:
		return "Cross-Site Scripting"
	case AttackPathTraversal:
		return "Path Traversal"
	case AttackDOS:
		return "Denial of Service"
	case AttackBruteForce:
		return "Brute Force"
	case AttackDataExfiltration:
		return "Data Exfiltration"
	case AttackScanning:
		return "Scanning/Reconnaissance"
	case AttackExploitAttempt:
		return "Exploit Attempt"
	case AttackSuspiciousActivity:
		return "Suspicious Activity"
	default:
		return string(t)
	}
}

// Valid reports whether t is one of the nine known categories.
func (t AttackType) Valid() bool {
	switch t {
	case AttackSQLInjection, AttackXSS, AttackPathTraversal, AttackDOS,
		AttackBruteForce, AttackDataExfiltration, AttackScanning,
		AttackExploitAttempt, AttackSuspiciousActivity:
		return true
	}
	return false
}

// ParseAttackType converts a string to an AttackType.
// Returns ok=false for unknown categories.
func ParseAttackType(s string) (AttackType, bool) {
	t := AttackType(s)
	return t, t.Valid()
}

// Severity buckets alerts by confidence for filtering and display.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityForConfidence maps a confidence score onto a severity bucket.
func SeverityForConfidence(confidence float64) Severity {
	switch {
	case confidence >= 0.9:
		return SeverityCritical
	case confidence >= 0.75:
		return SeverityHigh
	case confidence >= 0.6:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// MinConfidence returns the lower confidence bound of a severity bucket.
func (s Severity) MinConfidence() float64 {
	switch s {
	case SeverityCritical:
		return 0.9
	case SeverityHigh:
		return 0.75
	case SeverityMedium:
		return 0.6
	default:
		return 0
	}
}

// RawSampleLimit caps the stored raw-line sample on an alert.
const RawSampleLimit = 200

// AttackAlert is one detection finding. Alerts are created by the
// detection engine and never mutated; ID and UploadID are filled in by the
// ingestion layer when an alert is persisted.
type AttackAlert struct {
	ID        string     `json:"id,omitempty"`
	UploadID  string     `json:"upload_id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	ClientIP  string     `json:"client_ip"`
	Type      AttackType `json:"attack_type"`
	Endpoint  string     `json:"endpoint"`
	UserAgent string     `json:"user_agent,omitempty"`

	// StatusCode is the HTTP status of the triggering entry; zero when
	// the alert aggregates entries with mixed statuses.
	StatusCode int `json:"status_code,omitempty"`

	// Confidence is a fixed per-rule constant in [0,1], not a computed
	// probability.
	Confidence float64 `json:"confidence"`

	Details string `json:"details"`

	// RawSample is the first RawSampleLimit characters of the
	// triggering or representative entry's raw line.
	RawSample string `json:"raw_sample,omitempty"`

	// Country and City are optional GeoIP annotations added after
	// detection; empty when no GeoIP database is configured.
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
}

// Severity returns the severity bucket for the alert's confidence.
func (a *AttackAlert) Severity() Severity {
	return SeverityForConfidence(a.Confidence)
}

// TruncateSample shortens a raw log line to the stored sample limit.
func TruncateSample(raw string) string {
	if len(raw) <= RawSampleLimit {
		return raw
	}
	return raw[:RawSampleLimit]
}
