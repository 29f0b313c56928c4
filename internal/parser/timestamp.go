package parser

import (
	"time"
)

// accessTimeLayouts are the candidate timestamp layouts for access logs,
// tried in order; the first that parses wins. Layouts without a zone
// yield UTC.
var accessTimeLayouts = []string{
	"02/Jan/2006:15:04:05 -0700",
	"02/Jan/2006:15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// errorTimeLayout is the fixed error-log timestamp layout, zoneless and
// interpreted as UTC.
const errorTimeLayout = "2006/01/02 15:04:05"

func parseAccessTime(s string) (time.Time, error) {
	for _, layout := range accessTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrBadTimestamp
}

func parseErrorTime(s string) (time.Time, error) {
	t, err := time.Parse(errorTimeLayout, s)
	if err != nil {
		return time.Time{}, ErrBadTimestamp
	}
	return t.UTC(), nil
}
