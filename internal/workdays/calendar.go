// Package workdays counts business days between calendar dates. The holiday
// set is loaded once at startup and the calendar does no I/O afterwards.
package workdays

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Calendar knows which calendar dates are working days.
type Calendar struct {
	holidays map[string]bool
}

// NewCalendar creates a calendar with the given holiday dates.
func NewCalendar(holidays []time.Time) *Calendar {
	set := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		set[h.Format(dateLayout)] = true
	}
	return &Calendar{holidays: set}
}

// holidaysFile mirrors the YAML holiday list.
type holidaysFile struct {
	Holidays []string `yaml:"holidays"`
}

// LoadCalendar reads a YAML holiday file with a top-level "holidays" list of
// ISO dates.
func LoadCalendar(path string) (*Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read holidays file %s: %w", path, err)
	}
	var raw holidaysFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse holidays YAML: %w", err)
	}
	set := make(map[string]bool, len(raw.Holidays))
	for _, s := range raw.Holidays {
		if _, err := time.Parse(dateLayout, s); err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", s, err)
		}
		set[s] = true
	}
	return &Calendar{holidays: set}, nil
}

// IsWorkday reports whether the date is neither a weekend nor a holiday.
func (c *Calendar) IsWorkday(date time.Time) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.holidays[date.Format(dateLayout)]
}

// DaysBetween counts working days strictly after from and up to and including
// to. The result is negative when to precedes from.
func (c *Calendar) DaysBetween(from, to time.Time) int {
	from = truncate(from)
	to = truncate(to)
	if to.Before(from) {
		return -c.DaysBetween(to, from)
	}
	count := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsWorkday(d) {
			count++
		}
	}
	return count
}

// AddWorkdays returns the date n working days after from (n >= 0).
func (c *Calendar) AddWorkdays(from time.Time, n int) time.Time {
	d := truncate(from)
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if c.IsWorkday(d) {
			n--
		}
	}
	return d
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
