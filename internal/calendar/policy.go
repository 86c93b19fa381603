package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Holiday is an annual closure that falls on the same month and day every year.
type Holiday struct {
	Month time.Month
	Day   int
}

func (h Holiday) String() string {
	return fmt.Sprintf("%02d-%02d", int(h.Month), h.Day)
}

// Policy decides which calendar days the park is open.
type Policy struct {
	ClosedWeekdays []time.Weekday
	Holidays       []Holiday
	Location       *time.Location
}

// DefaultPolicy closes the park on Mondays, Christmas and New Year's Day.
func DefaultPolicy() Policy {
	return Policy{
		ClosedWeekdays: []time.Weekday{time.Monday},
		Holidays: []Holiday{
			{Month: time.December, Day: 25},
			{Month: time.January, Day: 1},
		},
		Location: time.UTC,
	}
}

// Today returns the current calendar day in the policy's time zone.
func (p Policy) Today(now time.Time) time.Time {
	return DayOf(now, p.location())
}

// Parse turns a client supplied visit date into a calendar day.
func (p Policy) Parse(value string) (time.Time, error) {
	return ParseDay(value, p.location())
}

// IsOpen expects a day produced by DayOf or ParseDay.
func (p Policy) IsOpen(day time.Time) bool {
	wd := day.Weekday()
	for _, closed := range p.ClosedWeekdays {
		if wd == closed {
			return false
		}
	}
	for _, h := range p.Holidays {
		if day.Month() == h.Month && day.Day() == h.Day {
			return false
		}
	}
	return true
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekdays reads a comma separated list such as "monday,tuesday".
// An empty string yields no closed weekdays.
func ParseWeekdays(value string) ([]time.Weekday, error) {
	var out []time.Weekday
	for _, part := range strings.Split(value, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		wd, ok := weekdayNames[name]
		if !ok {
			if len(name) >= 3 {
				for full, d := range weekdayNames {
					if strings.HasPrefix(full, name) {
						wd, ok = d, true
						break
					}
				}
			}
			if !ok {
				return nil, fmt.Errorf("unknown weekday %q", part)
			}
		}
		out = append(out, wd)
	}
	return out, nil
}

// ParseHolidays reads a comma separated list of MM-DD entries, e.g. "12-25,01-01".
func ParseHolidays(value string) ([]Holiday, error) {
	var out []Holiday
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pieces := strings.Split(part, "-")
		if len(pieces) != 2 {
			return nil, fmt.Errorf("holiday %q must be MM-DD", part)
		}
		month, err := strconv.Atoi(pieces[0])
		if err != nil || month < 1 || month > 12 {
			return nil, fmt.Errorf("holiday %q has an invalid month", part)
		}
		day, err := strconv.Atoi(pieces[1])
		if err != nil || day < 1 || day > 31 {
			return nil, fmt.Errorf("holiday %q has an invalid day", part)
		}
		out = append(out, Holiday{Month: time.Month(month), Day: day})
	}
	return out, nil
}
