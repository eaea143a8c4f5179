// Package schedule holds the weekly university class timetable used to
// derive class-start features. A Pattern is read once and never mutated.
package schedule

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

//go:embed patterns.json
var defaultPatterns []byte

var ErrInvalidPattern = errors.New("invalid class pattern")

// ClassTime is one entry of the timetable file.
type ClassTime struct {
	Days        string `json:"days"`
	Start       string `json:"start"`
	End         string `json:"end"`
	DurationMin int    `json:"duration_min"`
	Type        string `json:"type"`
}

// Clock is minutes after midnight.
type Clock int

func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: bad time %q", ErrInvalidPattern, s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func At(hour, minute int) Clock { return Clock(hour*60 + minute) }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60) }

type Slot struct {
	Start       Clock
	End         Clock
	DurationMin int
	Type        string
}

var dayLetters = map[rune]time.Weekday{
	'M': time.Monday,
	'T': time.Tuesday,
	'W': time.Wednesday,
	'R': time.Thursday,
	'F': time.Friday,
}

// Pattern maps each weekday to its class slots ordered by start time.
type Pattern struct {
	byDay map[time.Weekday][]Slot
}

var loadDefault = sync.OnceValues(func() (*Pattern, error) {
	var entries []ClassTime
	if err := json.Unmarshal(defaultPatterns, &entries); err != nil {
		return nil, err
	}
	return Parse(entries)
})

// Default returns the built-in timetable.
func Default() *Pattern {
	p, err := loadDefault()
	if err != nil {
		panic(fmt.Sprintf("embedded class patterns: %v", err))
	}
	return p
}

func LoadFile(path string) (*Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Pattern, error) {
	var entries []ClassTime
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return Parse(entries)
}

func Parse(entries []ClassTime) (*Pattern, error) {
	p := &Pattern{byDay: make(map[time.Weekday][]Slot)}
	for i, e := range entries {
		start, err := ParseClock(e.Start)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		end, err := ParseClock(e.End)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if end <= start {
			return nil, fmt.Errorf("%w: entry %d ends before it starts", ErrInvalidPattern, i)
		}
		dur := e.DurationMin
		if dur == 0 {
			dur = int(end - start)
		}
		if e.Days == "" {
			return nil, fmt.Errorf("%w: entry %d has no days", ErrInvalidPattern, i)
		}
		for _, r := range strings.ToUpper(e.Days) {
			wd, ok := dayLetters[r]
			if !ok {
				return nil, fmt.Errorf("%w: entry %d day letter %q", ErrInvalidPattern, i, r)
			}
			p.byDay[wd] = append(p.byDay[wd], Slot{Start: start, End: end, DurationMin: dur, Type: e.Type})
		}
	}
	for wd := range p.byDay {
		slots := p.byDay[wd]
		sort.SliceStable(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })
	}
	return p, nil
}

// Slots returns a copy of the day's classes ordered by start time.
func (p *Pattern) Slots(wd time.Weekday) []Slot {
	return append([]Slot(nil), p.byDay[wd]...)
}

// StartsBetween counts classes starting in [from, to], both inclusive.
func (p *Pattern) StartsBetween(wd time.Weekday, from, to Clock) int {
	n := 0
	for _, s := range p.byDay[wd] {
		if s.Start >= from && s.Start <= to {
			n++
		}
	}
	return n
}

func (p *Pattern) Starts(wd time.Weekday) int { return len(p.byDay[wd]) }

// Minutes is the total scheduled class time on the day.
func (p *Pattern) Minutes(wd time.Weekday) int {
	total := 0
	for _, s := range p.byDay[wd] {
		total += s.DurationMin
	}
	return total
}

// DayKey names the meeting pattern a weekday belongs to.
func DayKey(wd time.Weekday) string {
	switch wd {
	case time.Monday, time.Wednesday, time.Friday:
		return "MWF"
	case time.Tuesday, time.Thursday:
		return "TR"
	}
	return ""
}
