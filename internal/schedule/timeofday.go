package schedule

import (
	"fmt"
	"sort"
	"strings"
)

// TimeOfDay is a wall-clock hour and minute, independent of date and zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Before reports whether t is earlier in the day than other.
func (t TimeOfDay) Before(other TimeOfDay) bool {
	if t.Hour != other.Hour {
		return t.Hour < other.Hour
	}
	return t.Minute < other.Minute
}

// ParseTimeOfDay parses "HH:MM" with a 24-hour clock.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// TimesOfDay is the list of daily reminder times for a schedule.
type TimesOfDay []TimeOfDay

// Normalized returns a sorted copy with duplicates removed.
func (ts TimesOfDay) Normalized() TimesOfDay {
	out := make(TimesOfDay, 0, len(ts))
	seen := make(map[TimeOfDay]struct{}, len(ts))
	for _, t := range ts {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// CSV renders the list as a comma-separated "HH:MM" string, the format the
// store persists ("08:00,12:30,20:15").
func (ts TimesOfDay) CSV() string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}

// ParseTimesCSV parses the persisted comma-separated form. Empty items are
// skipped; malformed items are an error.
func ParseTimesCSV(s string) (TimesOfDay, error) {
	var out TimesOfDay
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		t, err := ParseTimeOfDay(item)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out.Normalized(), nil
}
