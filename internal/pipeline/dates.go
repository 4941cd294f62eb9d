package pipeline

import (
	"strings"
	"time"
)

// dateLayouts covers the formats tender sites actually publish. Order
// matters: layouts with month names come first so "05-Jun-2026" never parses
// as a numeric layout.
var dateLayouts = []string{
	"02-Jan-2006",
	"2-Jan-2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
}

// ParseDate attempts the known layouts against a scraped date string,
// stripping timezone suffixes sites append ("(GMT 1.00)" and the like).
// Returns nil when nothing fits; callers keep the raw string regardless.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	// Drop a trailing parenthesized timezone hint and any time-of-day part
	// after a comma-free "15:04" token.
	if i := strings.Index(s, "("); i > 0 {
		s = strings.TrimSpace(s[:i])
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}

	// Retry with a time-of-day suffix removed ("31/12/2026 17:00").
	if i := strings.LastIndex(s, " "); i > 0 && strings.Contains(s[i+1:], ":") {
		return ParseDate(s[:i])
	}

	return nil
}
