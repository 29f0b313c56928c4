// Package models contains the core data structures for Sentinel.
package models

import (
	"time"
)

// LogFormat identifies one of the recognized access/error log grammars.
type LogFormat string

const (
	FormatCombined LogFormat = "combined"
	FormatMain     LogFormat = "main"
	FormatExtended LogFormat = "extended"
	FormatError    LogFormat = "error"
)

// ParseLogFormat converts a string to a LogFormat, defaulting to combined.
func ParseLogFormat(s string) LogFormat {
	switch s {
	case "main":
		return FormatMain
	case "extended":
		return FormatExtended
	case "error":
		return FormatError
	default:
		return FormatCombined
	}
}

// LogEntry represents a single parsed access-log record.
//
// Entries are immutable once constructed by the parser. Optional text
// fields use the empty string to mean absent; the "-" sentinel from the
// log line is never stored.
type LogEntry struct {
	// Raw is the original unparsed log line, kept for alert samples.
	Raw string `json:"raw,omitempty"`

	// Timestamp is when the request was logged, always UTC.
	Timestamp time.Time `json:"timestamp"`

	// ClientIP is the client address as written in the log. It is an
	// opaque grouping key and is not validated as a real IP.
	ClientIP string `json:"client_ip"`

	// Method, Endpoint and Protocol come from the quoted request line.
	// Endpoint is the path only; the query string is split off into
	// QueryParams at the first '?'.
	Method      string `json:"method"`
	Endpoint    string `json:"endpoint"`
	QueryParams string `json:"query_params,omitempty"`
	Protocol    string `json:"protocol"`

	// Status is the 3-digit HTTP response status.
	Status int `json:"status"`

	// BytesSent is the response size; zero when the log wrote "-".
	BytesSent int64 `json:"bytes_sent"`

	Referrer  string `json:"referrer,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Host      string `json:"host,omitempty"`
}

// RequestTarget reconstructs the request target from path and query.
func (e *LogEntry) RequestTarget() string {
	if e.QueryParams == "" {
		return e.Endpoint
	}
	return e.Endpoint + "?" + e.QueryParams
}

// StatusClass returns the leading digit of the status code (2 for 2xx...).
func (e *LogEntry) StatusClass() int {
	return e.Status / 100
}

// IsError reports whether the entry has a 4xx or 5xx status.
func (e *LogEntry) IsError() bool {
	return e.Status >= 400
}

// ErrorLogEntry represents a single parsed error-log record.
// Error entries are produced by the parser but are not consumed by the
// detection engine.
type ErrorLogEntry struct {
	Raw          string    `json:"raw,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Level        string    `json:"level"`
	PID          int       `json:"pid"`
	TID          int       `json:"tid"`
	ConnectionID int64     `json:"connection_id"`
	Message      string    `json:"message"`
	Client       string    `json:"client,omitempty"`
	Server       string    `json:"server,omitempty"`
	Request      string    `json:"request,omitempty"`
	Host         string    `json:"host,omitempty"`
}
