package engine

import (
	"context"
	"fmt"
	"time"

	"medication-reminders/internal/schedule"
)

// The edit path: creating, replacing and deleting schedules. Unlike the
// trigger path, store failures here surface to the caller so the UI can offer
// a retry.

// CreateSchedule validates and persists a new schedule, computes its first
// trigger and arms it before returning.
func (e *Engine) CreateSchedule(ctx context.Context, sc *schedule.Schedule) error {
	if err := e.schedules.InsertSchedule(ctx, sc); err != nil {
		return err
	}

	unlock := e.locks.lock(sc.ID)
	defer unlock()
	return e.rearm(ctx, sc)
}

// ReplaceSchedule persists changed cycle parameters and recomputes the trigger
// from scratch before returning. Disabling a schedule cancels its alarm and
// zeroes the trigger.
func (e *Engine) ReplaceSchedule(ctx context.Context, sc *schedule.Schedule) error {
	unlock := e.locks.lock(sc.ID)
	defer unlock()
	e.clearPending(sc.ID)

	if err := e.schedules.UpdateSchedule(ctx, sc); err != nil {
		return err
	}
	return e.rearm(ctx, sc)
}

// DeleteSchedule cancels the schedule's alarm and removes the record.
func (e *Engine) DeleteSchedule(ctx context.Context, scheduleID string) error {
	unlock := e.locks.lock(scheduleID)
	defer unlock()

	e.alarms.Cancel(scheduleID)
	e.clearPending(scheduleID)
	return e.schedules.DeleteSchedule(ctx, scheduleID)
}

// DeleteForMedication cascades a medication deletion: every schedule owned by
// the medication loses its alarm and its record.
func (e *Engine) DeleteForMedication(ctx context.Context, medicationID string) (int, error) {
	scs, err := e.schedules.ListForMedication(ctx, medicationID)
	if err != nil {
		return 0, err
	}
	for _, sc := range scs {
		e.alarms.Cancel(sc.ID)
		e.clearPending(sc.ID)
	}
	return e.schedules.DeleteForMedication(ctx, medicationID)
}

// rearm recomputes the trigger from now and arms it, or cancels everything for
// a disabled schedule. Callers hold the schedule's lock.
func (e *Engine) rearm(ctx context.Context, sc *schedule.Schedule) error {
	now := e.clk.Now()
	if !sc.Enabled {
		e.alarms.Cancel(sc.ID)
		e.clearPending(sc.ID)
		if err := e.schedules.UpdateNextTrigger(ctx, sc.ID, time.Time{}, now); err != nil {
			return err
		}
		sc.NextTriggerAt = time.Time{}
		return nil
	}

	next, err := schedule.NextTrigger(sc, now)
	if err != nil {
		return fmt.Errorf("computing next trigger: %w", err)
	}
	if err := e.schedules.UpdateNextTrigger(ctx, sc.ID, next, now); err != nil {
		return err
	}
	sc.NextTriggerAt = next
	e.alarms.Arm(sc.ID, sc.MedicationID, next)
	return nil
}
