package models

import (
	"time"
)

// CountItem is one (value, count) pair in a ranked breakdown.
type CountItem struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// AggregatedMetrics summarizes one batch or time range of entries.
// All fields are computed in a single pass over the entries; the struct
// itself is a plain value object with no behavior beyond construction.
type AggregatedMetrics struct {
	TotalRequests int64 `json:"total_requests"`
	UniqueIPs     int64 `json:"unique_ips"`
	TotalBytes    int64 `json:"total_bytes"`

	Status2xx int64 `json:"status_2xx"`
	Status3xx int64 `json:"status_3xx"`
	Status4xx int64 `json:"status_4xx"`
	Status5xx int64 `json:"status_5xx"`

	// ErrorRate is (4xx+5xx)/total in [0,1]; zero for an empty batch.
	ErrorRate float64 `json:"error_rate"`

	RequestMethods map[string]int64 `json:"request_methods"`

	TopEndpoints []CountItem `json:"top_endpoints"`
	TopIPs       []CountItem `json:"top_ips"`

	// TimeframeStart and TimeframeEnd bound the entries' timestamps;
	// nil for an empty batch.
	TimeframeStart *time.Time `json:"timeframe_start,omitempty"`
	TimeframeEnd   *time.Time `json:"timeframe_end,omitempty"`
}

// TimelineBucket is one interval of the request/alert timeline.
type TimelineBucket struct {
	Start    time.Time `json:"start"`
	Requests int64     `json:"requests"`
	Errors   int64     `json:"errors"`
	Alerts   int64     `json:"alerts"`
	Bytes    int64     `json:"bytes"`
}
