package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medication-reminders/internal/schedule"
)

const scheduleColumns = `id, medication_id, cycle_type, times_of_day, days_of_week_mask,
	day_of_month, interval_days, start_date, enabled, next_trigger_at, created_at, updated_at`

// InsertSchedule validates s, assigns it a fresh ID and persists it.
func (s *Store) InsertSchedule(ctx context.Context, sc *schedule.Schedule) error {
	if err := sc.Validate(); err != nil {
		return &ConstraintError{Err: err}
	}
	sc.ID = uuid.New().String()
	sc.Times = sc.Times.Normalized()
	now := time.Now()
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = now
	}
	sc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.MedicationID, int(sc.CycleType), sc.Times.CSV(), int(sc.DaysOfWeek),
		sc.DayOfMonth, sc.IntervalDays, toMillis(sc.StartDate), boolToInt(sc.Enabled),
		toMillis(sc.NextTriggerAt), toMillis(sc.CreatedAt), toMillis(sc.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetSchedule returns the schedule with the given ID, or ErrNotFound.
func (s *Store) GetSchedule(ctx context.Context, id string) (*schedule.Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sc, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return sc, nil
}

// ListForMedication returns every schedule owned by the medication, newest
// first.
func (s *Store) ListForMedication(ctx context.Context, medicationID string) ([]*schedule.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE medication_id = ? ORDER BY created_at DESC`,
		medicationID)
	if err != nil {
		return nil, fmt.Errorf("list schedules for medication: %w", err)
	}
	return collectSchedules(rows)
}

// ListEnabled returns every enabled schedule ordered by next trigger instant.
// Used by startup recovery and the periodic sweep.
func (s *Store) ListEnabled(ctx context.Context) ([]*schedule.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE enabled = 1 ORDER BY next_trigger_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list enabled schedules: %w", err)
	}
	return collectSchedules(rows)
}

// UpdateSchedule replaces the stored record with sc. Recomputing
// NextTriggerAt is the caller's responsibility.
func (s *Store) UpdateSchedule(ctx context.Context, sc *schedule.Schedule) error {
	if err := sc.Validate(); err != nil {
		return &ConstraintError{Err: err}
	}
	sc.Times = sc.Times.Normalized()
	sc.UpdatedAt = time.Now()

	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET medication_id = ?, cycle_type = ?, times_of_day = ?,
			days_of_week_mask = ?, day_of_month = ?, interval_days = ?, start_date = ?,
			enabled = ?, next_trigger_at = ?, updated_at = ?
		WHERE id = ?`,
		sc.MedicationID, int(sc.CycleType), sc.Times.CSV(), int(sc.DaysOfWeek),
		sc.DayOfMonth, sc.IntervalDays, toMillis(sc.StartDate), boolToInt(sc.Enabled),
		toMillis(sc.NextTriggerAt), toMillis(sc.UpdatedAt), sc.ID,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return requireAffected(res)
}

// UpdateNextTrigger atomically sets the next trigger instant and the update
// timestamp. Readers never observe one without the other.
func (s *Store) UpdateNextTrigger(ctx context.Context, id string, next, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET next_trigger_at = ?, updated_at = ? WHERE id = ?`,
		toMillis(next), toMillis(updatedAt), id)
	if err != nil {
		return fmt.Errorf("update next trigger: %w", err)
	}
	return requireAffected(res)
}

// SetEnabled flips the enabled flag without touching the cycle parameters.
func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(enabled), toMillis(updatedAt), id)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	return requireAffected(res)
}

// DeleteSchedule removes the schedule with the given ID, or ErrNotFound.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return requireAffected(res)
}

// DeleteForMedication removes every schedule owned by the medication and
// returns how many were deleted. Zero deletions is not an error: the cascade
// runs even when the medication had no schedules.
func (s *Store) DeleteForMedication(ctx context.Context, medicationID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE medication_id = ?`, medicationID)
	if err != nil {
		return 0, fmt.Errorf("delete schedules for medication: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*schedule.Schedule, error) {
	var (
		sc                               schedule.Schedule
		cycleType, mask, enabled         int
		startDate, nextAt, created, updd int64
		timesCSV                         string
	)
	err := row.Scan(&sc.ID, &sc.MedicationID, &cycleType, &timesCSV, &mask,
		&sc.DayOfMonth, &sc.IntervalDays, &startDate, &enabled, &nextAt, &created, &updd)
	if err != nil {
		return nil, err
	}
	sc.CycleType = schedule.CycleType(cycleType)
	sc.DaysOfWeek = schedule.WeekdayMask(mask)
	sc.Enabled = enabled != 0
	sc.StartDate = fromMillis(startDate)
	sc.NextTriggerAt = fromMillis(nextAt)
	sc.CreatedAt = fromMillis(created)
	sc.UpdatedAt = fromMillis(updd)
	sc.Times, err = schedule.ParseTimesCSV(timesCSV)
	if err != nil {
		return nil, fmt.Errorf("corrupt times_of_day column: %w", err)
	}
	return &sc, nil
}

func collectSchedules(rows *sql.Rows) ([]*schedule.Schedule, error) {
	defer rows.Close()
	var out []*schedule.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
