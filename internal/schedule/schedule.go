package schedule

import (
	"fmt"
	"time"
)

// Schedule is one recurring dosing plan for one medication.
//
// The ID is assigned by the store on insert and is opaque to everything else.
// NextTriggerAt is the single authoritative next alarm instant; it is only
// ever set from calculator output (or zeroed when the schedule is disabled).
type Schedule struct {
	ID           string
	MedicationID string

	CycleType    CycleType
	Times        TimesOfDay
	DaysOfWeek   WeekdayMask // weekly only
	DayOfMonth   int         // monthly only, 1-31, clamped to short months at calculation time
	IntervalDays int         // every-x-days only
	StartDate    time.Time   // recurrence anchor, set at creation, never advanced

	Enabled       bool
	NextTriggerAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ValidationError reports a malformed schedule. It is returned by Validate
// and rejected at edit time, never persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid schedule: %s %s", e.Field, e.Reason)
}

// Validate checks the data-model invariants for the schedule's cycle type.
func (s *Schedule) Validate() error {
	if s.MedicationID == "" {
		return &ValidationError{Field: "medicationId", Reason: "is empty"}
	}
	if !s.CycleType.Valid() {
		return &ValidationError{Field: "cycleType", Reason: fmt.Sprintf("unknown value %d", int(s.CycleType))}
	}
	if len(s.Times.Normalized()) == 0 {
		return &ValidationError{Field: "timesOfDay", Reason: "must contain at least one time"}
	}
	switch s.CycleType {
	case CycleWeekly:
		if s.DaysOfWeek == 0 {
			return &ValidationError{Field: "daysOfWeek", Reason: "must select at least one day"}
		}
	case CycleMonthly:
		if s.DayOfMonth < 1 || s.DayOfMonth > 31 {
			return &ValidationError{Field: "dayOfMonth", Reason: "must be between 1 and 31"}
		}
	case CycleEveryXDays:
		if s.IntervalDays < 1 {
			return &ValidationError{Field: "intervalDays", Reason: "must be a positive number of days"}
		}
		if s.StartDate.IsZero() {
			return &ValidationError{Field: "startDate", Reason: "is required for every-x-days schedules"}
		}
	}
	return nil
}

// IntakeEvent is an append-only record of one confirmed dose. The medication
// name is a snapshot taken at confirmation time, so the record survives later
// renames or deletion of the medication.
type IntakeEvent struct {
	ID             string
	MedicationName string
	TakenAt        time.Time
	DosageTaken    int
}

// Medication is the read-only view of the externally-owned medication record
// that this subsystem needs at confirmation time.
type Medication struct {
	ID              string
	Name            string
	DosagePerIntake int
}
