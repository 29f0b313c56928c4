package detect

import (
	"testing"
	"time"

	"github.com/forenx/sentinel/internal/models"
)

func TestComputeMetrics(t *testing.T) {
	entries := []models.LogEntry{
		mkEntry("10.0.0.1", baseTime, "/a", "", "", 200, 100),
		mkEntry("10.0.0.1", baseTime.Add(time.Minute), "/a", "", "", 404, 50),
		mkEntry("10.0.0.2", baseTime.Add(2*time.Minute), "/b", "", "", 301, 0),
		mkEntry("10.0.0.3", baseTime.Add(3*time.Minute), "/a", "", "", 500, 25),
	}
	entries[3].Method = "POST"

	m := ComputeMetrics(entries, 2)

	if m.TotalRequests != 4 {
		t.Errorf("TotalRequests = %d, want 4", m.TotalRequests)
	}
	if m.UniqueIPs != 3 {
		t.Errorf("UniqueIPs = %d, want 3", m.UniqueIPs)
	}
	if m.TotalBytes != 175 {
		t.Errorf("TotalBytes = %d, want 175", m.TotalBytes)
	}
	if m.Status2xx != 1 || m.Status3xx != 1 || m.Status4xx != 1 || m.Status5xx != 1 {
		t.Errorf("status classes wrong: %+v", m)
	}
	if m.ErrorRate != 0.5 {
		t.Errorf("ErrorRate = %v, want 0.5", m.ErrorRate)
	}
	if m.RequestMethods["GET"] != 3 || m.RequestMethods["POST"] != 1 {
		t.Errorf("RequestMethods = %v", m.RequestMethods)
	}

	if len(m.TopEndpoints) != 2 || m.TopEndpoints[0].Value != "/a" || m.TopEndpoints[0].Count != 3 {
		t.Errorf("TopEndpoints = %v", m.TopEndpoints)
	}
	if len(m.TopIPs) != 2 || m.TopIPs[0].Value != "10.0.0.1" {
		t.Errorf("TopIPs = %v", m.TopIPs)
	}

	if m.TimeframeStart == nil || !m.TimeframeStart.Equal(baseTime) {
		t.Errorf("TimeframeStart = %v", m.TimeframeStart)
	}
	if m.TimeframeEnd == nil || !m.TimeframeEnd.Equal(baseTime.Add(3*time.Minute)) {
		t.Errorf("TimeframeEnd = %v", m.TimeframeEnd)
	}
}

func TestComputeMetrics_Empty(t *testing.T) {
	m := ComputeMetrics(nil, 0)
	if m.TotalRequests != 0 || m.ErrorRate != 0 {
		t.Errorf("empty batch metrics wrong: %+v", m)
	}
	if m.TimeframeStart != nil || m.TimeframeEnd != nil {
		t.Error("empty batch should have no timeframe")
	}
	if m.RequestMethods == nil {
		t.Error("RequestMethods should be initialized")
	}
}

func TestComputeMetrics_TieBreakStable(t *testing.T) {
	entries := []models.LogEntry{
		mkEntry("10.0.0.1", baseTime, "/first", "", "", 200, 0),
		mkEntry("10.0.0.1", baseTime, "/second", "", "", 200, 0),
	}

	m := ComputeMetrics(entries, 5)
	if m.TopEndpoints[0].Value != "/first" {
		t.Errorf("tie should keep first-appearance order, got %v", m.TopEndpoints)
	}
}

func TestTopUserAgents(t *testing.T) {
	entries := []models.LogEntry{
		mkEntry("10.0.0.1", baseTime, "/", "", "curl/7.0", 200, 0),
		mkEntry("10.0.0.2", baseTime, "/", "", "curl/7.0", 200, 0),
		mkEntry("10.0.0.3", baseTime, "/", "", "Mozilla/5.0", 200, 0),
		mkEntry("10.0.0.4", baseTime, "/", "", "", 200, 0),
	}

	top := TopUserAgents(entries, 5)
	if len(top) != 2 {
		t.Fatalf("absent user agents must not be counted, got %v", top)
	}
	if top[0].Value != "curl/7.0" || top[0].Count != 2 {
		t.Errorf("top user agent wrong: %v", top)
	}
}

func TestTopIPsAndEndpoints(t *testing.T) {
	entries := []models.LogEntry{
		mkEntry("10.0.0.1", baseTime, "/index", "", "", 200, 0),
		mkEntry("10.0.0.1", baseTime, "/index", "", "", 200, 0),
		mkEntry("10.0.0.1", baseTime, "/login", "", "", 200, 0),
		mkEntry("10.0.0.2", baseTime, "/index", "", "", 200, 0),
	}

	ips := TopIPs(entries, 1)
	if len(ips) != 1 || ips[0].Value != "10.0.0.1" || ips[0].Count != 3 {
		t.Errorf("TopIPs = %v", ips)
	}

	eps := TopEndpoints(entries, 5)
	if len(eps) != 2 || eps[0].Value != "/index" || eps[0].Count != 3 {
		t.Errorf("TopEndpoints = %v", eps)
	}
}

func TestTopStatusCodes(t *testing.T) {
	entries := []models.LogEntry{
		mkEntry("10.0.0.1", baseTime, "/", "", "", 404, 0),
		mkEntry("10.0.0.1", baseTime, "/", "", "", 404, 0),
		mkEntry("10.0.0.1", baseTime, "/", "", "", 200, 0),
	}

	top := TopStatusCodes(entries, 5)
	if top[0].Value != "404" || top[0].Count != 2 {
		t.Errorf("TopStatusCodes = %v", top)
	}
}

func TestTimeline(t *testing.T) {
	entries := []models.LogEntry{
		mkEntry("10.0.0.1", baseTime, "/", "", "", 200, 100),
		mkEntry("10.0.0.1", baseTime.Add(30*time.Second), "/", "", "", 500, 50),
		mkEntry("10.0.0.1", baseTime.Add(3*time.Minute), "/", "", "", 200, 10),
	}
	alerts := []models.AttackAlert{
		{Timestamp: baseTime.Add(10 * time.Second), ClientIP: "10.0.0.1", Type: models.AttackScanning},
	}

	buckets := Timeline(entries, alerts, time.Minute)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 non-empty buckets, got %d: %+v", len(buckets), buckets)
	}

	first := buckets[0]
	if !first.Start.Equal(baseTime.Truncate(time.Minute)) {
		t.Errorf("first bucket start = %v", first.Start)
	}
	if first.Requests != 2 || first.Errors != 1 || first.Alerts != 1 || first.Bytes != 150 {
		t.Errorf("first bucket wrong: %+v", first)
	}

	second := buckets[1]
	if second.Requests != 1 || second.Alerts != 0 {
		t.Errorf("second bucket wrong: %+v", second)
	}

	if !buckets[0].Start.Before(buckets[1].Start) {
		t.Error("buckets must be sorted ascending")
	}
}
