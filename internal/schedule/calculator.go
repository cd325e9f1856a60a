package schedule

import (
	"errors"
	"time"
)

// searchHorizonDays bounds the day enumeration in NextTrigger. No valid cycle
// configuration needs anywhere near this many days between occurrences; hitting
// the horizon means the schedule cannot produce a future trigger.
const searchHorizonDays = 400

// ErrNoQualifyingDay is returned when no day within the search horizon
// satisfies the schedule's day-selection rule. It indicates a configuration
// defect (for example a weekly schedule with an empty day mask) and is not
// retriable.
var ErrNoQualifyingDay = errors.New("no qualifying day within search horizon")

// NextTrigger computes the next trigger instant for s that is strictly after
// ref. It is a pure function of its arguments: all calendar arithmetic happens
// in ref's location on wall-clock terms, and the current time is never
// consulted.
//
// Days are enumerated from ref's calendar day upward. On the first day that
// satisfies the cycle's day-selection rule, the times of day are tried in
// ascending order and the first instant after ref wins; if every time on that
// day has already elapsed, the search moves on to the next qualifying day.
func NextTrigger(s *Schedule, ref time.Time) (time.Time, error) {
	if err := s.Validate(); err != nil {
		return time.Time{}, err
	}
	times := s.Times.Normalized()
	day := midnight(ref)
	for i := 0; i < searchHorizonDays; i++ {
		d := day.AddDate(0, 0, i)
		if !s.dayQualifies(d) {
			continue
		}
		for _, tod := range times {
			cand := time.Date(d.Year(), d.Month(), d.Day(), tod.Hour, tod.Minute, 0, 0, ref.Location())
			if cand.After(ref) {
				return cand, nil
			}
		}
	}
	return time.Time{}, ErrNoQualifyingDay
}

// dayQualifies applies the cycle's day-selection rule to the midnight instant d.
func (s *Schedule) dayQualifies(d time.Time) bool {
	switch s.CycleType {
	case CycleDaily:
		return true
	case CycleWeekly:
		return s.DaysOfWeek.Contains(d.Weekday())
	case CycleMonthly:
		return d.Day() == clampDayOfMonth(s.DayOfMonth, d)
	case CycleEveryXDays:
		offset := wholeDaysBetween(midnightIn(s.StartDate, d.Location()), d)
		return offset >= 0 && offset%s.IntervalDays == 0
	default:
		return false
	}
}

// clampDayOfMonth degrades a target day like 31 gracefully in shorter months
// by clamping to the month's last day.
func clampDayOfMonth(target int, d time.Time) int {
	last := daysInMonth(d.Year(), d.Month())
	if target > last {
		return last
	}
	return target
}

func daysInMonth(year int, month time.Month) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func midnightIn(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// wholeDaysBetween counts calendar days from a to b, both midnights in the
// same location. Rounding absorbs the odd-length days around DST transitions.
func wholeDaysBetween(a, b time.Time) int {
	d := b.Sub(a)
	if d < 0 {
		return -int((-d + 12*time.Hour) / (24 * time.Hour))
	}
	return int((d + 12*time.Hour) / (24 * time.Hour))
}
