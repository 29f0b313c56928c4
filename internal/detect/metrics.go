package detect

import (
	"sort"
	"time"

	"github.com/forenx/sentinel/internal/models"
)

// DefaultTopN bounds the ranked breakdowns in aggregated metrics.
const DefaultTopN = 5

// ComputeMetrics aggregates a batch of entries in a single pass. Ranked
// breakdowns are sorted by count descending with ties in first-appearance
// order, so the result is deterministic. topN <= 0 uses DefaultTopN.
func ComputeMetrics(entries []models.LogEntry, topN int) *models.AggregatedMetrics {
	if topN <= 0 {
		topN = DefaultTopN
	}

	m := &models.AggregatedMetrics{
		RequestMethods: make(map[string]int64),
	}
	if len(entries) == 0 {
		return m
	}

	ips := newRankedCounter()
	endpoints := newRankedCounter()

	first, last := entries[0].Timestamp, entries[0].Timestamp

	for i := range entries {
		entry := &entries[i]

		m.TotalRequests++
		m.TotalBytes += entry.BytesSent
		m.RequestMethods[entry.Method]++

		switch entry.StatusClass() {
		case 2:
			m.Status2xx++
		case 3:
			m.Status3xx++
		case 4:
			m.Status4xx++
		case 5:
			m.Status5xx++
		}

		ips.add(entry.ClientIP)
		endpoints.add(entry.Endpoint)

		if entry.Timestamp.Before(first) {
			first = entry.Timestamp
		}
		if entry.Timestamp.After(last) {
			last = entry.Timestamp
		}
	}

	m.UniqueIPs = int64(ips.size())
	m.ErrorRate = float64(m.Status4xx+m.Status5xx) / float64(m.TotalRequests)
	m.TopIPs = ips.top(topN)
	m.TopEndpoints = endpoints.top(topN)
	m.TimeframeStart = &first
	m.TimeframeEnd = &last

	return m
}

// TopIPs ranks client IPs across a batch.
func TopIPs(entries []models.LogEntry, topN int) []models.CountItem {
	if topN <= 0 {
		topN = DefaultTopN
	}
	c := newRankedCounter()
	for i := range entries {
		c.add(entries[i].ClientIP)
	}
	return c.top(topN)
}

// TopEndpoints ranks requested endpoints across a batch.
func TopEndpoints(entries []models.LogEntry, topN int) []models.CountItem {
	if topN <= 0 {
		topN = DefaultTopN
	}
	c := newRankedCounter()
	for i := range entries {
		c.add(entries[i].Endpoint)
	}
	return c.top(topN)
}

// TopUserAgents ranks user agents across a batch; absent user agents are
// not counted.
func TopUserAgents(entries []models.LogEntry, topN int) []models.CountItem {
	if topN <= 0 {
		topN = DefaultTopN
	}
	c := newRankedCounter()
	for i := range entries {
		if ua := entries[i].UserAgent; ua != "" {
			c.add(ua)
		}
	}
	return c.top(topN)
}

// TopStatusCodes ranks response statuses across a batch.
func TopStatusCodes(entries []models.LogEntry, topN int) []models.CountItem {
	if topN <= 0 {
		topN = DefaultTopN
	}
	c := newRankedCounter()
	for i := range entries {
		c.add(statusText(entries[i].Status))
	}
	return c.top(topN)
}

func statusText(status int) string {
	digits := [3]byte{}
	digits[0] = byte('0' + status/100)
	digits[1] = byte('0' + (status/10)%10)
	digits[2] = byte('0' + status%10)
	return string(digits[:])
}

// Timeline buckets requests, errors, bytes and alerts by interval.
// Only non-empty buckets are returned, in ascending time order.
func Timeline(entries []models.LogEntry, alerts []models.AttackAlert, interval time.Duration) []models.TimelineBucket {
	if interval <= 0 {
		interval = time.Hour
	}

	buckets := make(map[time.Time]*models.TimelineBucket)

	for i := range entries {
		entry := &entries[i]
		b := bucketFor(buckets, entry.Timestamp, interval)
		b.Requests++
		b.Bytes += entry.BytesSent
		if entry.IsError() {
			b.Errors++
		}
	}

	for i := range alerts {
		b := bucketFor(buckets, alerts[i].Timestamp, interval)
		b.Alerts++
	}

	out := make([]models.TimelineBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })

	return out
}

func bucketFor(buckets map[time.Time]*models.TimelineBucket, ts time.Time, interval time.Duration) *models.TimelineBucket {
	start := ts.UTC().Truncate(interval)
	b, ok := buckets[start]
	if !ok {
		b = &models.TimelineBucket{Start: start}
		buckets[start] = b
	}
	return b
}

// rankedCounter counts string keys while remembering first-appearance
// order for deterministic tie-breaking.
type rankedCounter struct {
	counts map[string]int64
	order  []string
}

func newRankedCounter() *rankedCounter {
	return &rankedCounter{counts: make(map[string]int64)}
}

func (c *rankedCounter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

func (c *rankedCounter) size() int {
	return len(c.counts)
}

func (c *rankedCounter) top(n int) []models.CountItem {
	items := make([]models.CountItem, 0, len(c.order))
	for _, key := range c.order {
		items = append(items, models.CountItem{Value: key, Count: c.counts[key]})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Count > items[j].Count })
	if len(items) > n {
		items = items[:n]
	}
	return items
}
