package schedule

import (
	"strings"
	"time"
)

// WeekdayMask is a 7-bit set of weekdays used by weekly schedules.
//
// Bit layout, from highest to lowest: Monday = 1<<6, Tuesday = 1<<5,
// Wednesday = 1<<4, Thursday = 1<<3, Friday = 1<<2, Saturday = 1<<1,
// Sunday = 1<<0. This is the only place the mapping is defined; everything
// else goes through WeekdayBit.
type WeekdayMask uint8

const (
	Monday    WeekdayMask = 1 << 6
	Tuesday   WeekdayMask = 1 << 5
	Wednesday WeekdayMask = 1 << 4
	Thursday  WeekdayMask = 1 << 3
	Friday    WeekdayMask = 1 << 2
	Saturday  WeekdayMask = 1 << 1
	Sunday    WeekdayMask = 1 << 0

	// AllWeekdays has every weekday bit set.
	AllWeekdays WeekdayMask = 1<<7 - 1
)

// WeekdayBit returns the mask bit for a time.Weekday.
func WeekdayBit(d time.Weekday) WeekdayMask {
	if d == time.Sunday {
		return Sunday
	}
	return 1 << (7 - uint(d))
}

// Contains reports whether the weekday's bit is set.
func (m WeekdayMask) Contains(d time.Weekday) bool {
	return m&WeekdayBit(d) != 0
}

// With returns a copy of the mask with the weekday's bit set.
func (m WeekdayMask) With(d time.Weekday) WeekdayMask {
	return m | WeekdayBit(d)
}

// Days returns the selected weekdays in Monday-first order.
func (m WeekdayMask) Days() []time.Weekday {
	order := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
		time.Friday, time.Saturday, time.Sunday,
	}
	var days []time.Weekday
	for _, d := range order {
		if m.Contains(d) {
			days = append(days, d)
		}
	}
	return days
}

func (m WeekdayMask) String() string {
	days := m.Days()
	if len(days) == 0 {
		return "none"
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = strings.ToLower(d.String())
	}
	return strings.Join(names, ",")
}

// ParseWeekday converts a lowercase weekday name ("monday" ... "sunday").
func ParseWeekday(s string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, true
		}
	}
	return 0, false
}
