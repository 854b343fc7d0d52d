package check

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"geo_gate/internal/dataType"
)

// ScheduleLocation resolves a rule timezone; empty means UTC.
func ScheduleLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

// ParseClock parses "HH:mm" into minutes since midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// IsInWindow reports whether the rule's schedule allows it at now.
// Configuration problems never hide a rule: the check passes and the problem
// is returned for the caller to log.
func IsInWindow(rule dataType.Rule, now time.Time) (bool, error) {
	if !rule.ScheduleEnabled {
		return true, nil
	}

	loc, err := ScheduleLocation(rule.Timezone)
	if err != nil {
		return true, fmt.Errorf("rule %s: timezone %q: %w", rule.ID, rule.Timezone, err)
	}
	local := now.In(loc)

	if len(rule.DaysOfWeek) > 0 {
		today := int(local.Weekday())
		found := false
		for _, d := range rule.DaysOfWeek {
			if d == today {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}

	if strings.TrimSpace(rule.StartTime) == "" || strings.TrimSpace(rule.EndTime) == "" {
		return true, nil
	}
	start, err := ParseClock(rule.StartTime)
	if err != nil {
		return true, fmt.Errorf("rule %s: start_time: %w", rule.ID, err)
	}
	end, err := ParseClock(rule.EndTime)
	if err != nil {
		return true, fmt.Errorf("rule %s: end_time: %w", rule.ID, err)
	}

	nowMinutes := local.Hour()*60 + local.Minute()
	if start <= end {
		return nowMinutes >= start && nowMinutes <= end, nil
	}
	// overnight window, e.g. 22:00-06:00
	return nowMinutes >= start || nowMinutes <= end, nil
}
