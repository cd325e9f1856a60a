// Package engine reacts to reminder fires and user actions, persisting
// progress and keeping exactly one alarm armed per active schedule.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"medication-reminders/internal/alarm"
	"medication-reminders/internal/schedule"
	"medication-reminders/internal/store"
)

const (
	// SnoozeDelay is the fixed deferral applied by the snooze action. Snoozing
	// never advances the recurrence pattern.
	SnoozeDelay = 10 * time.Minute

	// retryDelay is the fallback re-arm delay when the store fails on the
	// trigger path. Firing an extra reminder beats losing the next one.
	retryDelay = time.Minute

	// storeTimeout bounds every store call made from the trigger path so a
	// wedged database cannot hang the event handler.
	storeTimeout = 5 * time.Second
)

// ScheduleStore is the persistence surface the engine needs for schedules.
type ScheduleStore interface {
	InsertSchedule(ctx context.Context, sc *schedule.Schedule) error
	GetSchedule(ctx context.Context, id string) (*schedule.Schedule, error)
	ListForMedication(ctx context.Context, medicationID string) ([]*schedule.Schedule, error)
	ListEnabled(ctx context.Context) ([]*schedule.Schedule, error)
	UpdateSchedule(ctx context.Context, sc *schedule.Schedule) error
	UpdateNextTrigger(ctx context.Context, id string, next, updatedAt time.Time) error
	DeleteSchedule(ctx context.Context, id string) error
	DeleteForMedication(ctx context.Context, medicationID string) (int, error)
}

// IntakeLog appends confirmed doses.
type IntakeLog interface {
	AppendIntake(ctx context.Context, ev *schedule.IntakeEvent) error
}

// MedicationReader is the read-only view of the externally-owned medication
// store.
type MedicationReader interface {
	GetMedication(ctx context.Context, id string) (*schedule.Medication, error)
}

// Alarms is the timer seam. The production implementation is *alarm.Scheduler.
type Alarms interface {
	Arm(scheduleID, medicationID string, at time.Time)
	Cancel(scheduleID string)
	Armed(scheduleID string) bool
}

// Deps collects the engine's collaborators.
type Deps struct {
	Schedules   ScheduleStore
	Intakes     IntakeLog
	Medications MedicationReader
	Alarms      Alarms
	Notifier    Notifier
	Clock       clock.Clock
	Log         *logrus.Logger
}

// Engine is the reminder state machine. A schedule is ARMED while its timer is
// outstanding, FIRED while a notification awaits an action, and returns to
// ARMED through either snooze or taken.
type Engine struct {
	schedules ScheduleStore
	intakes   IntakeLog
	meds      MedicationReader
	alarms    Alarms
	notifier  Notifier
	clk       clock.Clock
	log       *logrus.Logger

	locks keyedMutex

	// pending holds schedule IDs whose notification is on screen awaiting an
	// action. It is what keeps the sweep from re-firing a schedule the user
	// simply has not answered yet.
	pendingMu sync.Mutex
	pending   map[string]struct{}
}

func New(d Deps) *Engine {
	return &Engine{
		schedules: d.Schedules,
		intakes:   d.Intakes,
		meds:      d.Medications,
		alarms:    d.Alarms,
		notifier:  d.Notifier,
		clk:       d.Clock,
		log:       d.Log,
		pending:   make(map[string]struct{}),
	}
}

// HandleFired is the platform-timer entry point. It shows the notification
// carrying the snooze and taken actions and mutates nothing: the outstanding
// notification is the FIRED state.
func (e *Engine) HandleFired(f alarm.Fire) {
	unlock := e.locks.lock(f.ScheduleID)
	defer unlock()

	if e.isPending(f.ScheduleID) {
		// A notification for this schedule is already on screen; a duplicate
		// fire (late sweep, timer race) must not stack a second one.
		e.log.WithField("schedule_id", f.ScheduleID).Debug("fire ignored, notification already pending")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	sc, err := e.schedules.GetSchedule(ctx, f.ScheduleID)
	if errors.Is(err, store.ErrNotFound) {
		e.log.WithField("schedule_id", f.ScheduleID).Info("fired for deleted schedule, ignoring")
		return
	}
	if err != nil {
		e.log.WithError(err).WithField("schedule_id", f.ScheduleID).Error("loading schedule after fire")
		e.alarms.Arm(f.ScheduleID, f.MedicationID, e.clk.Now().Add(retryDelay))
		return
	}
	if !sc.Enabled {
		return
	}

	body := "Time to take your medication"
	if med, err := e.meds.GetMedication(ctx, sc.MedicationID); err == nil {
		body = fmt.Sprintf("Time to take %s", med.Name)
	}

	e.setPending(f.ScheduleID)
	e.notifier.Show(Notification{
		ScheduleID:   sc.ID,
		MedicationID: sc.MedicationID,
		Title:        "Medication reminder",
		Body:         body,
		Actions:      []ActionKind{ActionSnooze, ActionTaken},
	})
}

// Apply dispatches a typed notification action to the state machine. It is the
// single subscriber for the {action, scheduleId, medicationId} payloads the
// notification surface emits.
func (e *Engine) Apply(ctx context.Context, a Action) error {
	switch a.Kind {
	case ActionSnooze:
		return e.Snooze(ctx, a.ScheduleID)
	case ActionTaken:
		return e.Taken(ctx, a.ScheduleID)
	default:
		return fmt.Errorf("unknown action %q", a.Kind)
	}
}

// Snooze defers the reminder by exactly SnoozeDelay from now, regardless of
// cycle type, and re-arms. No intake event is recorded.
func (e *Engine) Snooze(ctx context.Context, scheduleID string) error {
	unlock := e.locks.lock(scheduleID)
	defer unlock()
	e.clearPending(scheduleID)

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	now := e.clk.Now()
	next := now.Add(SnoozeDelay)
	err := e.schedules.UpdateNextTrigger(ctx, scheduleID, next, now)
	if errors.Is(err, store.ErrNotFound) {
		e.log.WithField("schedule_id", scheduleID).Info("snooze for deleted schedule, ignoring")
		return nil
	}
	if err != nil {
		e.log.WithError(err).WithField("schedule_id", scheduleID).Error("persisting snoozed trigger")
		e.alarms.Arm(scheduleID, "", now.Add(retryDelay))
		return nil
	}
	e.alarms.Arm(scheduleID, "", next)
	return nil
}

// Taken confirms the dose: it appends one intake event with a snapshot of the
// medication, advances the trigger by the recurrence pattern (never a fixed
// delay) and re-arms. Pressing taken twice for the same fire appends exactly
// one event: once the trigger has been advanced past now the reminder is
// considered acknowledged and further taken calls no-op.
func (e *Engine) Taken(ctx context.Context, scheduleID string) error {
	unlock := e.locks.lock(scheduleID)
	defer unlock()
	e.clearPending(scheduleID)

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	now := e.clk.Now()
	sc, err := e.schedules.GetSchedule(ctx, scheduleID)
	if errors.Is(err, store.ErrNotFound) {
		e.log.WithField("schedule_id", scheduleID).Info("taken for deleted schedule, ignoring")
		return nil
	}
	if err != nil {
		e.log.WithError(err).WithField("schedule_id", scheduleID).Error("loading schedule for taken")
		e.alarms.Arm(scheduleID, "", now.Add(retryDelay))
		return nil
	}
	if !sc.Enabled {
		return nil
	}
	if sc.NextTriggerAt.After(now) {
		// Already acknowledged: the trigger was advanced into the future by a
		// previous taken or snooze for this fire.
		e.log.WithField("schedule_id", scheduleID).Debug("taken ignored, trigger already advanced")
		return nil
	}

	med, err := e.meds.GetMedication(ctx, sc.MedicationID)
	if errors.Is(err, store.ErrNotFound) {
		e.log.WithFields(logrus.Fields{
			"schedule_id":   scheduleID,
			"medication_id": sc.MedicationID,
		}).Info("taken for deleted medication, ignoring")
		return nil
	}
	if err != nil {
		e.log.WithError(err).WithField("schedule_id", scheduleID).Error("loading medication for taken")
		e.alarms.Arm(scheduleID, sc.MedicationID, now.Add(retryDelay))
		return nil
	}

	ev := &schedule.IntakeEvent{
		MedicationName: med.Name,
		TakenAt:        now,
		DosageTaken:    med.DosagePerIntake,
	}
	if err := e.intakes.AppendIntake(ctx, ev); err != nil {
		e.log.WithError(err).WithField("schedule_id", scheduleID).Error("appending intake event")
		e.alarms.Arm(scheduleID, sc.MedicationID, now.Add(retryDelay))
		return nil
	}

	next, err := schedule.NextTrigger(sc, now)
	if err != nil {
		// Configuration defect; nothing sensible to arm.
		return fmt.Errorf("computing next trigger for %s: %w", scheduleID, err)
	}
	if err := e.schedules.UpdateNextTrigger(ctx, scheduleID, next, now); err != nil {
		e.log.WithError(err).WithField("schedule_id", scheduleID).Error("persisting advanced trigger")
		e.alarms.Arm(scheduleID, sc.MedicationID, now.Add(retryDelay))
		return nil
	}
	e.alarms.Arm(scheduleID, sc.MedicationID, next)
	return nil
}

func (e *Engine) isPending(id string) bool {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	_, ok := e.pending[id]
	return ok
}

func (e *Engine) setPending(id string) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	e.pending[id] = struct{}{}
}

func (e *Engine) clearPending(id string) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	delete(e.pending, id)
}

// keyedMutex serializes work per schedule ID so the edit path and the trigger
// path cannot interleave their read-modify-write cycles on the same record.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
