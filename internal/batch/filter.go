package batch

import (
	"fmt"
	"time"

	"github.com/forenx/sentinel/internal/models"
)

// DateFilter restricts entries to a time window. Zero bounds are open.
type DateFilter struct {
	From time.Time
	To   time.Time
}

// NewDateFilter creates a filter for the given range.
func NewDateFilter(from, to time.Time) *DateFilter {
	return &DateFilter{From: from, To: to}
}

// IsActive reports whether any bound is set.
func (f *DateFilter) IsActive() bool {
	return f != nil && (!f.From.IsZero() || !f.To.IsZero())
}

// Matches reports whether an entry falls inside the window. Entries
// without a timestamp pass only when the filter is inactive.
func (f *DateFilter) Matches(e *models.LogEntry) bool {
	if !f.IsActive() {
		return true
	}
	if e.Timestamp.IsZero() {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

// Apply filters the slice in place, keeping matching entries.
func (f *DateFilter) Apply(entries []models.LogEntry) []models.LogEntry {
	if !f.IsActive() {
		return entries
	}
	kept := entries[:0]
	for i := range entries {
		if f.Matches(&entries[i]) {
			kept = append(kept, entries[i])
		}
	}
	return kept
}

// ParseDateFlag parses a date flag value, accepting YYYY-MM-DD or full
// RFC 3339 timestamps.
func ParseDateFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", value)
}

// ParseDateFlagEndOfDay parses a date flag value for upper bounds. A
// bare date means the end of that day, not midnight at its start.
func ParseDateFlagEndOfDay(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.Add(24*time.Hour - time.Nanosecond), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", value)
}
