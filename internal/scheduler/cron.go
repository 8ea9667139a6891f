package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// maxLookaheadDays bounds Cron.NextAfter's brute-force minute search,
// matching the ported cron parser's own lookahead guard.
const maxLookaheadDays = 366

// Cron is a parsed 5-field cron expression (minute hour dom month dow),
// each field expanded to the concrete set of matching values.
type Cron struct {
	minutes map[int]bool
	hours   map[int]bool
	dom     map[int]bool
	months  map[int]bool
	dow     map[int]bool // normalized to 0-6, 0=Sunday
}

// ParseCron parses a standard 5-field cron expression, supporting "*",
// lists ("1,2,3"), ranges ("1-5"), steps ("*/5", "1-10/2"), and the
// Sunday=0-or-7 day-of-week convention.
func ParseCron(expr string) (*Cron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("scheduler: cron must have 5 fields, got %d", len(fields))
	}
	minutes, err := parseField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("scheduler: minute field: %w", err)
	}
	hours, err := parseField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("scheduler: hour field: %w", err)
	}
	dom, err := parseField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("scheduler: day-of-month field: %w", err)
	}
	months, err := parseField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("scheduler: month field: %w", err)
	}
	dowRaw, err := parseField(fields[4], 0, 7)
	if err != nil {
		return nil, fmt.Errorf("scheduler: day-of-week field: %w", err)
	}
	dow := make(map[int]bool, len(dowRaw))
	for v := range dowRaw {
		if v == 7 {
			v = 0
		}
		dow[v] = true
	}
	return &Cron{minutes: minutes, hours: hours, dom: dom, months: months, dow: dow}, nil
}

func parseField(field string, min, max int) (map[int]bool, error) {
	field = strings.TrimSpace(field)
	out := map[int]bool{}
	if field == "*" {
		for v := min; v <= max; v++ {
			out[v] = true
		}
		return out, nil
	}
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "*":
			for v := min; v <= max; v++ {
				out[v] = true
			}
		case strings.HasPrefix(part, "*/"):
			step, err := strconv.Atoi(part[2:])
			if err != nil || step <= 0 {
				return nil, fmt.Errorf("invalid step %q", part)
			}
			for v := min; v <= max; v += step {
				out[v] = true
			}
		case strings.Contains(part, "/"):
			rng, stepS, _ := strings.Cut(part, "/")
			step, err := strconv.Atoi(stepS)
			if err != nil || step <= 0 {
				return nil, fmt.Errorf("invalid step %q", part)
			}
			a, b := min, max
			if strings.Contains(rng, "-") {
				var err error
				a, b, err = parseRange(rng)
				if err != nil {
					return nil, err
				}
			} else {
				v, err := strconv.Atoi(rng)
				if err != nil {
					return nil, fmt.Errorf("invalid value %q", rng)
				}
				a = v
			}
			if a < min || b > max || a > b {
				return nil, fmt.Errorf("range out of bounds %q", part)
			}
			for v := a; v <= b; v += step {
				out[v] = true
			}
		case strings.Contains(part, "-"):
			a, b, err := parseRange(part)
			if err != nil {
				return nil, err
			}
			if a < min || b > max || a > b {
				return nil, fmt.Errorf("range out of bounds %q", part)
			}
			for v := a; v <= b; v++ {
				out[v] = true
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q", part)
			}
			if v < min || v > max {
				return nil, fmt.Errorf("value %d out of range [%d,%d]", v, min, max)
			}
			out[v] = true
		}
	}
	return out, nil
}

func parseRange(s string) (int, int, error) {
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid range %q", s)
	}
	av, err := strconv.Atoi(a)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range %q", s)
	}
	bv, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range %q", s)
	}
	return av, bv, nil
}

// Matches reports whether t (interpreted in UTC) satisfies every field.
func (c *Cron) Matches(t time.Time) bool {
	t = t.UTC()
	dow := int(t.Weekday())
	return c.minutes[t.Minute()] && c.hours[t.Hour()] && c.dom[t.Day()] && c.months[int(t.Month())] && c.dow[dow]
}

// NextAfter brute-force searches minute by minute for the first time
// strictly after "after" that matches, mirroring the ported cron
// parser's own next_after (acceptable for a low-volume schedule table).
func (c *Cron) NextAfter(after time.Time) (time.Time, error) {
	t := after.UTC().Truncate(time.Minute).Add(time.Minute)
	end := after.UTC().AddDate(0, 0, maxLookaheadDays)
	for !t.After(end) {
		if c.Matches(t) {
			return t, nil
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("scheduler: no matching time within %d days", maxLookaheadDays)
}
