package booking

import (
	"strconv"
	"strings"
	"time"
)

// Normalized holds the comparable scheduling values derived from a Draft.
// A nil field means the raw value was empty or unparseable; comparisons
// against nil are never treated as a change.
type Normalized struct {
	// Date is the lesson date truncated to midnight UTC.
	Date *time.Time
	// StartMinute is minutes from midnight for the lesson start.
	StartMinute *int
	// DurationMins is the lesson length in minutes. Derived from start/end
	// time when the explicit duration is zero or missing; negative spans
	// (end before start) normalize to zero.
	DurationMins *int
}

// Normalize converts a draft's heterogeneous scheduling fields into a
// Normalized snapshot.
func Normalize(d Draft) Normalized {
	var n Normalized

	if t, ok := parseDate(d.Date); ok {
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		n.Date = &day
	}

	start, startOK := parseClock(d.StartTime)
	if !startOK {
		// A full timestamp in the date field carries the start time too.
		// Date-only values fail the timestamp layouts, so they never
		// produce a spurious midnight start.
		if t, ok := parseTimestamp(d.Date); ok {
			start, startOK = t.Hour()*60+t.Minute(), true
		}
	}
	if startOK {
		n.StartMinute = &start
	}

	if mins, ok := parseDuration(d.DurationMins.String()); ok && mins > 0 {
		n.DurationMins = &mins
	} else if end, endOK := parseClock(d.EndTime); endOK && startOK {
		span := end - start
		if span < 0 {
			span = 0
		}
		n.DurationMins = &span
	}

	return n
}

// SameDate reports whether two normalized snapshots agree on the date.
// Unknown on either side counts as unchanged.
func (n Normalized) SameDate(o Normalized) bool {
	if n.Date == nil || o.Date == nil {
		return true
	}
	return n.Date.Equal(*o.Date)
}

// SameStart reports whether two normalized snapshots agree on the start time.
func (n Normalized) SameStart(o Normalized) bool {
	return sameInt(n.StartMinute, o.StartMinute)
}

// SameDuration reports whether two normalized snapshots agree on duration.
func (n Normalized) SameDuration(o Normalized) bool {
	return sameInt(n.DurationMins, o.DurationMins)
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return true
	}
	return *a == *b
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
	"01/02/2006",
	"2006/01/02",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04pm",
	"3:04 pm",
	"3pm",
}

// parseClock converts a time-of-day string into minutes from midnight.
// Accepts 24-hour ("14:00"), seconds-qualified ("14:00:00"), and 12-hour
// ("2:00pm", "2:00 PM") forms.
func parseClock(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), true
		}
	}
	return 0, false
}

// parseDuration accepts integer or decimal minute counts in numeric-or-string
// form ("90", "90.0"). Empty or malformed input yields (0, false).
func parseDuration(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f), true
	}
	return 0, false
}
