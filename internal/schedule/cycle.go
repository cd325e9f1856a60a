package schedule

import "fmt"

// CycleType selects the recurrence family for a schedule. The numeric values
// match what is persisted in the schedules table.
type CycleType int

const (
	CycleDaily CycleType = iota
	CycleWeekly
	CycleMonthly
	CycleEveryXDays
)

func (c CycleType) String() string {
	switch c {
	case CycleDaily:
		return "daily"
	case CycleWeekly:
		return "weekly"
	case CycleMonthly:
		return "monthly"
	case CycleEveryXDays:
		return "every_x_days"
	default:
		return fmt.Sprintf("cycle(%d)", int(c))
	}
}

// ParseCycleType converts the wire representation of a cycle type.
func ParseCycleType(s string) (CycleType, error) {
	switch s {
	case "daily":
		return CycleDaily, nil
	case "weekly":
		return CycleWeekly, nil
	case "monthly":
		return CycleMonthly, nil
	case "every_x_days":
		return CycleEveryXDays, nil
	default:
		return 0, fmt.Errorf("unknown cycle type %q", s)
	}
}

// Valid reports whether c is one of the defined cycle types.
func (c CycleType) Valid() bool {
	return c >= CycleDaily && c <= CycleEveryXDays
}
