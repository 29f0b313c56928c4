package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/forenx/sentinel/internal/models"
)

// Access grammar patterns. The request-line endpoint is a lazy capture
// rather than \S+ so attack payloads carrying raw spaces or quotes still
// parse; the trailing protocol token re-anchors the match. (?m) makes ^
// bind to line starts, which lets the same pattern serve both single-line
// parsing and multi-line sample detection.
var (
	// combined: $remote_addr - - [$time_local] "$request" $status $bytes "$referer" "$user_agent"
	combinedRegex = regexp.MustCompile(`(?m)^(?P<ip>\S+) - - \[(?P<timestamp>[^\]]+)\] "(?P<method>\S+) (?P<endpoint>.+?) (?P<protocol>\S+)" (?P<status>\d+) (?P<bytes>\d+|-) "(?P<referrer>[^"]*)" "(?P<useragent>[^"]*)"`)

	// main: $remote_addr - $remote_user [$time_local] "$request" $status $bytes
	mainRegex = regexp.MustCompile(`(?m)^(?P<ip>\S+) - (?P<user>\S+) \[(?P<timestamp>[^\]]+)\] "(?P<method>\S+) (?P<endpoint>.+?) (?P<protocol>\S+)" (?P<status>\d+) (?P<bytes>\d+|-)`)

	// extended: main + "$referer" "$user_agent" "$host"
	extendedRegex = regexp.MustCompile(`(?m)^(?P<ip>\S+) - (?P<user>\S+) \[(?P<timestamp>[^\]]+)\] "(?P<method>\S+) (?P<endpoint>.+?) (?P<protocol>\S+)" (?P<status>\d+) (?P<bytes>\d+|-) "(?P<referrer>[^"]*)" "(?P<useragent>[^"]*)" "(?P<host>[^"]*)"`)
)

// AccessParser parses lines of one access grammar.
type AccessParser struct {
	format models.LogFormat
	re     *regexp.Regexp
}

var accessParsers = map[models.LogFormat]*AccessParser{
	models.FormatCombined: {format: models.FormatCombined, re: combinedRegex},
	models.FormatMain:     {format: models.FormatMain, re: mainRegex},
	models.FormatExtended: {format: models.FormatExtended, re: extendedRegex},
}

// AccessParserFor returns the parser for an access grammar; unknown
// formats resolve to combined.
func AccessParserFor(format models.LogFormat) *AccessParser {
	if p, ok := accessParsers[format]; ok {
		return p
	}
	return accessParsers[models.FormatCombined]
}

// Format returns the grammar this parser handles.
func (p *AccessParser) Format() models.LogFormat {
	return p.format
}

// Matches reports whether the grammar matches anywhere in the sample.
func (p *AccessParser) Matches(sample string) bool {
	return p.re.MatchString(sample)
}

// ParseLine parses a single access-log line.
// Returns ErrInvalidFormat when the grammar does not match or a numeric
// field is out of range, and ErrBadTimestamp when no timestamp layout
// applies. Callers drop the line in both cases.
func (p *AccessParser) ParseLine(line string) (*models.LogEntry, error) {
	if line == "" {
		return nil, ErrEmptyLine
	}

	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return nil, ErrInvalidFormat
	}
	g := p.groups(m)

	ts, err := parseAccessTime(g["timestamp"])
	if err != nil {
		return nil, err
	}

	status, err := strconv.Atoi(g["status"])
	if err != nil || status < 100 || status > 599 {
		return nil, ErrInvalidFormat
	}

	endpoint, query := splitTarget(g["endpoint"])

	return &models.LogEntry{
		Raw:         line,
		Timestamp:   ts,
		ClientIP:    g["ip"],
		Method:      g["method"],
		Endpoint:    endpoint,
		QueryParams: query,
		Protocol:    g["protocol"],
		Status:      status,
		BytesSent:   parseBytes(g["bytes"]),
		Referrer:    optField(g["referrer"]),
		UserAgent:   optField(g["useragent"]),
		Host:        optField(g["host"]),
	}, nil
}

// groups maps named captures to their matched text.
func (p *AccessParser) groups(m []string) map[string]string {
	g := make(map[string]string, len(m))
	for i, name := range p.re.SubexpNames() {
		if i != 0 && name != "" && i < len(m) {
			g[name] = m[i]
		}
	}
	return g
}

// splitTarget splits a request target into path and query string at the
// first '?' only; an encoded %3F never splits.
func splitTarget(target string) (path, query string) {
	path, query, _ = strings.Cut(target, "?")
	return path, query
}

// parseBytes coerces the bytes field; "-" or garbage becomes zero.
func parseBytes(s string) int64 {
	if s == "" || s == "-" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// optField maps the "-" sentinel to absent.
func optField(s string) string {
	if s == "-" {
		return ""
	}
	return s
}
