package daily

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"cloud.google.com/go/civil"
)

var ErrBadDate = errors.New("unrecognized date")

// ServiceZone is the zone the transit agency runs its service day in.
const ServiceZone = "America/New_York"

// LoadZone resolves a zone name, defaulting to ServiceZone.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = ServiceZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", name, err)
	}
	return loc, nil
}

// ParseDate normalizes the date formats found in the input feeds to a
// calendar date. Timestamps keep the wall-clock date as written; no zone
// conversion is applied. POSIX seconds are read as UTC.
func ParseDate(s string) (civil.Date, error) {
	return ParseDateIn(s, time.UTC)
}

// ParseDateIn is ParseDate with POSIX seconds dated in loc. A nil loc means UTC.
func ParseDateIn(s string, loc *time.Location) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, fmt.Errorf("%w: empty", ErrBadDate)
	}

	if isDigits(s) {
		switch {
		case len(s) == 8:
			return parseCompact(s)
		case len(s) >= 9:
			secs, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return civil.Date{}, fmt.Errorf("%w: %q", ErrBadDate, s)
			}
			return civil.DateOf(time.Unix(secs, 0).In(orUTC(loc))), nil
		}
		return civil.Date{}, fmt.Errorf("%w: %q", ErrBadDate, s)
	}

	if len(s) >= 10 && (s[4] == '-' || s[4] == '/') && (s[7] == '-' || s[7] == '/') {
		head := strings.ReplaceAll(s[:10], "/", "-")
		d, err := civil.ParseDate(head)
		if err != nil {
			return civil.Date{}, fmt.Errorf("%w: %q", ErrBadDate, s)
		}
		return d, nil
	}

	// M/D/YYYY spreadsheet exports
	if t, err := time.Parse("1/2/2006", strings.Fields(s)[0]); err == nil {
		return civil.DateOf(t), nil
	}
	return civil.Date{}, fmt.Errorf("%w: %q", ErrBadDate, s)
}

// ParseHour returns the wall-clock hour of a timestamp string, if it has one.
func ParseHour(s string) (int, bool) {
	return ParseHourIn(s, time.UTC)
}

// ParseHourIn is ParseHour with POSIX seconds read in loc.
func ParseHourIn(s string, loc *time.Location) (int, bool) {
	s = strings.TrimSpace(s)
	if isDigits(s) && len(s) >= 9 {
		secs, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false
		}
		return time.Unix(secs, 0).In(orUTC(loc)).Hour(), true
	}
	if len(s) < 13 || (s[10] != ' ' && s[10] != 'T') {
		return 0, false
	}
	h, err := strconv.Atoi(s[11:13])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}

// ParseTimestamp parses the timestamp layouts used by the alert feeds.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if isDigits(s) && len(s) >= 9 {
		secs, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(secs, 0).UTC(), true
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05-07",
		"2006/01/02 15:04:05-07",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

func parseCompact(s string) (civil.Date, error) {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("%w: %q", ErrBadDate, s)
	}
	return civil.DateOf(t), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// DenseRange lists every calendar date from start to end inclusive.
func DenseRange(start, end civil.Date) []civil.Date {
	if end.Before(start) {
		return nil
	}
	out := make([]civil.Date, 0, end.DaysSince(start)+1)
	for d := start; !d.After(end); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

func Weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}
