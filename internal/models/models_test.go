package models

import (
	"strings"
	"testing"
	"time"
)

func TestAttackTypeDisplayName(t *testing.T) {
	tests := []struct {
		attackType AttackType
		want       string
	}{
		{AttackSQLInjection, "SQL Injection"},
		{AttackXSS, "Cross-Site Scripting"},
		{AttackPathTraversal, "Path Traversal"},
		{AttackDOS, "Denial of Service"},
		{AttackBruteForce, "Brute Force"},
		{AttackDataExfiltration, "Data Exfiltration"},
		{AttackScanning, "Scanning/Reconnaissance"},
		{AttackExploitAttempt, "Exploit Attempt"},
		{AttackSuspiciousActivity, "Suspicious Activity"},
	}

	for _, tt := range tests {
		t.Run(string(tt.attackType), func(t *testing.T) {
			if got := tt.attackType.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAttackTypeValid(t *testing.T) {
	if len(AttackTypes) != 9 {
		t.Fatalf("expected 9 attack types, got %d", len(AttackTypes))
	}

	for _, at := range AttackTypes {
		if !at.Valid() {
			t.Errorf("%s should be valid", at)
		}
	}

	if AttackType("RANSOMWARE").Valid() {
		t.Error("unknown category should not be valid")
	}

	if _, ok := ParseAttackType("XSS"); !ok {
		t.Error("ParseAttackType should accept XSS")
	}
	if _, ok := ParseAttackType("xss"); ok {
		t.Error("ParseAttackType is case-sensitive")
	}
}

func TestSeverityForConfidence(t *testing.T) {
	tests := []struct {
		confidence float64
		want       Severity
	}{
		{0.95, SeverityCritical},
		{0.9, SeverityCritical},
		{0.89, SeverityHigh},
		{0.75, SeverityHigh},
		{0.74, SeverityMedium},
		{0.6, SeverityMedium},
		{0.59, SeverityLow},
		{0, SeverityLow},
	}

	for _, tt := range tests {
		if got := SeverityForConfidence(tt.confidence); got != tt.want {
			t.Errorf("SeverityForConfidence(%v) = %v, want %v", tt.confidence, got, tt.want)
		}
	}
}

func TestTruncateSample(t *testing.T) {
	short := "GET /index.html"
	if got := TruncateSample(short); got != short {
		t.Errorf("short sample should be untouched, got %q", got)
	}

	long := strings.Repeat("x", RawSampleLimit+50)
	got := TruncateSample(long)
	if len(got) != RawSampleLimit {
		t.Errorf("expected %d chars, got %d", RawSampleLimit, len(got))
	}
}

func TestLogEntryHelpers(t *testing.T) {
	entry := LogEntry{
		Timestamp:   time.Date(2023, 10, 10, 13, 55, 36, 0, time.UTC),
		ClientIP:    "10.0.0.1",
		Method:      "GET",
		Endpoint:    "/search",
		QueryParams: "q=test",
		Status:      404,
	}

	if got := entry.RequestTarget(); got != "/search?q=test" {
		t.Errorf("RequestTarget() = %q", got)
	}
	if entry.StatusClass() != 4 {
		t.Errorf("StatusClass() = %d, want 4", entry.StatusClass())
	}
	if !entry.IsError() {
		t.Error("404 should be an error")
	}

	entry.QueryParams = ""
	if got := entry.RequestTarget(); got != "/search" {
		t.Errorf("RequestTarget() without query = %q", got)
	}

	entry.Status = 200
	if entry.IsError() {
		t.Error("200 should not be an error")
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"admin", RoleAdmin},
		{"analyst", RoleAnalyst},
		{"viewer", RoleViewer},
		{"", RoleViewer},
		{"root", RoleViewer},
	}

	for _, tt := range tests {
		if got := ParseRole(tt.in); got != tt.want {
			t.Errorf("ParseRole(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRefreshTokenLifecycle(t *testing.T) {
	token, plain, err := NewRefreshToken("user-1", time.Hour)
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}

	if plain == "" {
		t.Fatal("plaintext token should not be empty")
	}
	if token.TokenHash == plain {
		t.Error("stored hash must differ from plaintext")
	}
	if token.TokenHash != HashToken(plain) {
		t.Error("HashToken should reproduce the stored hash")
	}
	if !token.IsValid() {
		t.Error("fresh token should be valid")
	}

	token.Revoked = true
	if token.IsValid() {
		t.Error("revoked token should not be valid")
	}

	expired, _, err := NewRefreshToken("user-1", -time.Minute)
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	if !expired.IsExpired() {
		t.Error("token with negative TTL should be expired")
	}
}
