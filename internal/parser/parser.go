// Package parser converts raw web-server log text into structured entries.
//
// Four line grammars are recognized: combined, main, extended and error.
// Parsing degrades per line: a line that does not match the grammar, or
// whose timestamp cannot be interpreted, is skipped and counted in the
// returned Stats. A batch with zero parseable lines is a valid empty
// result, not an error.
package parser

import (
	"errors"
	"strings"

	"github.com/forenx/sentinel/internal/models"
)

// Common errors returned by line parsers.
var (
	ErrInvalidFormat = errors.New("invalid log format")
	ErrEmptyLine     = errors.New("empty line")
	ErrBadTimestamp  = errors.New("unparsable timestamp")
)

// DetectSampleSize is how much of a file's head DetectFormat expects.
const DetectSampleSize = 1000

// Stats carries per-batch parse diagnostics. BadTimestamps counts lines
// that matched a grammar but carried a timestamp no candidate layout could
// interpret; those lines are dropped rather than stamped with the current
// time.
type Stats struct {
	Lines         int64 `json:"lines"`
	Parsed        int64 `json:"parsed"`
	Malformed     int64 `json:"malformed"`
	BadTimestamps int64 `json:"bad_timestamps"`
}

// Skipped returns the total number of dropped lines.
func (s Stats) Skipped() int64 {
	return s.Malformed + s.BadTimestamps
}

// accessOrder is the fixed order in which access grammars are tried
// during format detection. Combined is first and is also the fallback, so
// ambiguous samples resolve to it.
var accessOrder = []models.LogFormat{
	models.FormatCombined,
	models.FormatMain,
	models.FormatExtended,
}

// DetectFormat classifies a text sample (typically the first
// DetectSampleSize bytes of a file) as one of the four grammars.
//
// A sample containing both "client:" and "server:" is an error log,
// regardless of other content. Otherwise the access grammars are tried in
// fixed order and the first whose pattern matches anywhere in the sample
// wins; combined is the default. This is a heuristic: ambiguous content
// can misclassify, and that is accepted behavior.
func DetectFormat(sample string) models.LogFormat {
	if strings.Contains(sample, "client:") && strings.Contains(sample, "server:") {
		return models.FormatError
	}

	for _, format := range accessOrder {
		if accessParsers[format].Matches(sample) {
			return format
		}
	}

	return models.FormatCombined
}

// ParseAccessLog parses text under the given access grammar, preserving
// input line order. Unknown formats (including "error") fall back to
// combined, mirroring format detection's default.
func ParseAccessLog(text string, format models.LogFormat) ([]models.LogEntry, Stats) {
	p, ok := accessParsers[format]
	if !ok {
		p = accessParsers[models.FormatCombined]
	}

	var stats Stats
	entries := make([]models.LogEntry, 0, 128)

	for _, line := range splitLines(text) {
		if line == "" {
			continue
		}
		stats.Lines++

		entry, err := p.ParseLine(line)
		if err != nil {
			if errors.Is(err, ErrBadTimestamp) {
				stats.BadTimestamps++
			} else {
				stats.Malformed++
			}
			continue
		}

		entries = append(entries, *entry)
		stats.Parsed++
	}

	return entries, stats
}

// ParseErrorLog parses text under the error grammar, preserving input
// line order.
func ParseErrorLog(text string) ([]models.ErrorLogEntry, Stats) {
	var stats Stats
	entries := make([]models.ErrorLogEntry, 0, 64)

	for _, line := range splitLines(text) {
		if line == "" {
			continue
		}
		stats.Lines++

		entry, err := errParser.ParseLine(line)
		if err != nil {
			if errors.Is(err, ErrBadTimestamp) {
				stats.BadTimestamps++
			} else {
				stats.Malformed++
			}
			continue
		}

		entries = append(entries, *entry)
		stats.Parsed++
	}

	return entries, stats
}

// splitLines splits on newlines and strips trailing carriage returns so
// CRLF input parses the same as LF input.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
