package parser

import (
	"regexp"
	"strconv"

	"github.com/forenx/sentinel/internal/models"
)

// error grammar: date [level] pid#tid: *cid message, client: ..., server: ...,
// request: "...", host: "..."
// Lines without the client/server/request/host tail (startup notices,
// signal logs) do not match and are skipped.
var errorRegex = regexp.MustCompile(`(?m)^(?P<timestamp>\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}) \[(?P<level>\w+)\] (?P<pid>\d+)#(?P<tid>\d+): \*(?P<cid>\d+) (?P<message>.+?), client: (?P<client>.+?), server: (?P<server>.*?), request: "(?P<request>[^"]*)", host: "(?P<host>[^"]*)"`)

// ErrorParser parses the error-log grammar.
type ErrorParser struct {
	re *regexp.Regexp
}

var errParser = &ErrorParser{re: errorRegex}

// NewErrorParser returns the error-log parser.
func NewErrorParser() *ErrorParser {
	return errParser
}

// Matches reports whether the grammar matches anywhere in the sample.
func (p *ErrorParser) Matches(sample string) bool {
	return p.re.MatchString(sample)
}

// ParseLine parses a single error-log line.
func (p *ErrorParser) ParseLine(line string) (*models.ErrorLogEntry, error) {
	if line == "" {
		return nil, ErrEmptyLine
	}

	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return nil, ErrInvalidFormat
	}
	g := p.groups(m)

	ts, err := parseErrorTime(g["timestamp"])
	if err != nil {
		return nil, err
	}

	pid, _ := strconv.Atoi(g["pid"])
	tid, _ := strconv.Atoi(g["tid"])
	cid, _ := strconv.ParseInt(g["cid"], 10, 64)

	return &models.ErrorLogEntry{
		Raw:          line,
		Timestamp:    ts,
		Level:        g["level"],
		PID:          pid,
		TID:          tid,
		ConnectionID: cid,
		Message:      g["message"],
		Client:       g["client"],
		Server:       g["server"],
		Request:      g["request"],
		Host:         g["host"],
	}, nil
}

func (p *ErrorParser) groups(m []string) map[string]string {
	g := make(map[string]string, len(m))
	for i, name := range p.re.SubexpNames() {
		if i != 0 && name != "" && i < len(m) {
			g[name] = m[i]
		}
	}
	return g
}
