// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package sync

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
//
// Supported syntax per field: "*", single values, ranges ("1-5"), lists
// ("1,3,5"), and steps ("*/15", "0-30/5"). Months and days of week also
// accept three-letter names ("jan", "mon-fri"), case-insensitive.
// Day-of-week 7 is normalized to 0 (Sunday). Day-of-month and day-of-week
// are OR'd when both are restricted, matching standard cron behavior.
type Schedule struct {
	minutes set
	hours   set
	dom     set
	months  set
	dow     set
}

type set map[int]bool

func (s set) full(lo, hi int) bool { return len(s) == hi-lo+1 }

// ParseSchedule parses a 5-field cron expression.
func ParseSchedule(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression %q must have 5 fields, got %d", expr, len(fields))
	}

	specs := []struct {
		name   string
		lo, hi int
		names  map[string]int
		dst    *set
	}{
		{"minute", 0, 59, nil, nil},
		{"hour", 0, 23, nil, nil},
		{"day-of-month", 1, 31, nil, nil},
		{"month", 1, 12, monthNames, nil},
		{"day-of-week", 0, 7, dowNames, nil},
	}

	sched := &Schedule{}
	specs[0].dst = &sched.minutes
	specs[1].dst = &sched.hours
	specs[2].dst = &sched.dom
	specs[3].dst = &sched.months
	specs[4].dst = &sched.dow

	for i, spec := range specs {
		parsed, err := parseCronField(fields[i], spec.lo, spec.hi, spec.names)
		if err != nil {
			return nil, fmt.Errorf("%s field: %w", spec.name, err)
		}
		*spec.dst = parsed
	}

	// 7 is an alias for Sunday.
	if sched.dow[7] {
		delete(sched.dow, 7)
		sched.dow[0] = true
	}
	return sched, nil
}

// Next returns the first time strictly after t that matches the schedule.
// A nil location means UTC. The scan is bounded; a valid schedule always
// matches within four years.
func (s *Schedule) Next(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	cur := t.In(loc).Add(time.Minute).Truncate(time.Minute)

	const bound = 4 * 366 * 24 * 60
	for i := 0; i < bound; i++ {
		if s.matches(cur) {
			return cur
		}
		cur = cur.Add(time.Minute)
	}
	return time.Time{}
}

func (s *Schedule) matches(t time.Time) bool {
	if !s.minutes[t.Minute()] || !s.hours[t.Hour()] || !s.months[int(t.Month())] {
		return false
	}

	domOK := s.dom[t.Day()]
	dowOK := s.dow[int(t.Weekday())]

	switch {
	case s.dom.full(1, 31):
		return dowOK
	case s.dow.full(0, 6):
		return domOK
	default:
		return domOK || dowOK
	}
}

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var dowNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

func parseCronField(field string, lo, hi int, names map[string]int) (set, error) {
	out := make(set)
	for _, part := range strings.Split(field, ",") {
		if err := parseCronPart(part, lo, hi, names, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// cronValue resolves a field token: a number, or a name when the field has a
// name table.
func cronValue(s string, names map[string]int) (int, bool) {
	if v, err := strconv.Atoi(s); err == nil {
		return v, true
	}
	v, ok := names[strings.ToLower(s)]
	return v, ok
}

func parseCronPart(part string, lo, hi int, names map[string]int, out set) error {
	step := 1
	if base, stepStr, ok := strings.Cut(part, "/"); ok {
		n, err := strconv.Atoi(stepStr)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid step %q", stepStr)
		}
		step = n
		part = base
		// "n/step" means n through the field maximum.
		if part != "*" && !strings.Contains(part, "-") {
			part += "-" + strconv.Itoa(hi)
		}
	}

	start, end := lo, hi
	switch {
	case part == "*":
	case strings.Contains(part, "-"):
		a, b, _ := strings.Cut(part, "-")
		var ok bool
		if start, ok = cronValue(a, names); !ok {
			return fmt.Errorf("invalid range start %q", a)
		}
		if end, ok = cronValue(b, names); !ok {
			return fmt.Errorf("invalid range end %q", b)
		}
		if start > end || start < lo || end > hi {
			return fmt.Errorf("range %d-%d outside %d-%d", start, end, lo, hi)
		}
	default:
		v, ok := cronValue(part, names)
		if !ok {
			return fmt.Errorf("invalid value %q", part)
		}
		if v < lo || v > hi {
			return fmt.Errorf("value %d outside %d-%d", v, lo, hi)
		}
		start, end = v, v
	}

	for v := start; v <= end; v += step {
		out[v] = true
	}
	return nil
}
