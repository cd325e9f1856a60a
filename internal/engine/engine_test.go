package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medication-reminders/internal/alarm"
	"medication-reminders/internal/schedule"
	"medication-reminders/internal/store"
)

var errInjected = errors.New("injected store failure")

type fakeStore struct {
	mu        sync.Mutex
	schedules map[string]*schedule.Schedule
	intakes   []*schedule.IntakeEvent
	meds      map[string]*schedule.Medication
	nextID    int

	failUpdateTrigger bool
	failAppendIntake  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		schedules: make(map[string]*schedule.Schedule),
		meds:      make(map[string]*schedule.Medication),
	}
}

func (f *fakeStore) InsertSchedule(_ context.Context, sc *schedule.Schedule) error {
	if err := sc.Validate(); err != nil {
		return &store.ConstraintError{Err: err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	sc.ID = fmt.Sprintf("sched-%d", f.nextID)
	cp := *sc
	f.schedules[sc.ID] = &cp
	return nil
}

func (f *fakeStore) GetSchedule(_ context.Context, id string) (*schedule.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.schedules[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sc
	return &cp, nil
}

func (f *fakeStore) ListForMedication(_ context.Context, medicationID string) ([]*schedule.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*schedule.Schedule
	for _, sc := range f.schedules {
		if sc.MedicationID == medicationID {
			cp := *sc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) ListEnabled(_ context.Context) ([]*schedule.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*schedule.Schedule
	for _, sc := range f.schedules {
		if sc.Enabled {
			cp := *sc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateSchedule(_ context.Context, sc *schedule.Schedule) error {
	if err := sc.Validate(); err != nil {
		return &store.ConstraintError{Err: err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schedules[sc.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *sc
	f.schedules[sc.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateNextTrigger(_ context.Context, id string, next, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateTrigger {
		return errInjected
	}
	sc, ok := f.schedules[id]
	if !ok {
		return store.ErrNotFound
	}
	sc.NextTriggerAt = next
	sc.UpdatedAt = updatedAt
	return nil
}

func (f *fakeStore) DeleteSchedule(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schedules[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.schedules, id)
	return nil
}

func (f *fakeStore) DeleteForMedication(_ context.Context, medicationID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, sc := range f.schedules {
		if sc.MedicationID == medicationID {
			delete(f.schedules, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) AppendIntake(_ context.Context, ev *schedule.IntakeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppendIntake {
		return errInjected
	}
	cp := *ev
	f.intakes = append(f.intakes, &cp)
	return nil
}

func (f *fakeStore) GetMedication(_ context.Context, id string) (*schedule.Medication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.meds[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) intakeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.intakes)
}

type fakeAlarms struct {
	mu      sync.Mutex
	armedAt map[string]time.Time
	cancels []string
}

func newFakeAlarms() *fakeAlarms {
	return &fakeAlarms{armedAt: make(map[string]time.Time)}
}

func (f *fakeAlarms) Arm(scheduleID, _ string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armedAt[scheduleID] = at
}

func (f *fakeAlarms) Cancel(scheduleID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.armedAt, scheduleID)
	f.cancels = append(f.cancels, scheduleID)
}

func (f *fakeAlarms) Armed(scheduleID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.armedAt[scheduleID]
	return ok
}

func (f *fakeAlarms) at(scheduleID string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.armedAt[scheduleID]
	return at, ok
}

type fakeNotifier struct {
	mu    sync.Mutex
	shown []Notification
}

func (f *fakeNotifier) Show(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = append(f.shown, n)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.shown)
}

type fixture struct {
	eng      *Engine
	st       *fakeStore
	alarms   *fakeAlarms
	notifier *fakeNotifier
	clk      *clock.Mock
}

var testBase = time.Date(2026, time.August, 28, 8, 5, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newFakeStore()
	alarms := newFakeAlarms()
	notifier := &fakeNotifier{}
	clk := clock.NewMock()
	clk.Set(testBase)

	log := logrus.New()
	log.SetOutput(io.Discard)

	eng := New(Deps{
		Schedules:   st,
		Intakes:     st,
		Medications: st,
		Alarms:      alarms,
		Notifier:    notifier,
		Clock:       clk,
		Log:         log,
	})
	return &fixture{eng: eng, st: st, alarms: alarms, notifier: notifier, clk: clk}
}

// seedDaily installs a daily 08:00 schedule whose trigger already elapsed at
// 08:00 today, plus its medication.
func (fx *fixture) seedDaily(t *testing.T) *schedule.Schedule {
	t.Helper()
	fx.st.meds["med-1"] = &schedule.Medication{ID: "med-1", Name: "Aspirin", DosagePerIntake: 2}
	sc := &schedule.Schedule{
		MedicationID:  "med-1",
		CycleType:     schedule.CycleDaily,
		Times:         schedule.TimesOfDay{{Hour: 8, Minute: 0}},
		Enabled:       true,
		NextTriggerAt: time.Date(2026, time.August, 28, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, fx.st.InsertSchedule(context.Background(), sc))
	return sc
}

func TestSnoozeDefersByExactlyTenMinutes(t *testing.T) {
	fx := newFixture(t)
	sc := fx.seedDaily(t)

	require.NoError(t, fx.eng.Snooze(context.Background(), sc.ID))

	got, err := fx.st.GetSchedule(context.Background(), sc.ID)
	require.NoError(t, err)
	assert.Equal(t, testBase.Add(10*time.Minute), got.NextTriggerAt)

	armedAt, ok := fx.alarms.at(sc.ID)
	require.True(t, ok)
	assert.Equal(t, testBase.Add(10*time.Minute), armedAt)
	assert.Zero(t, fx.st.intakeCount(), "snooze must not record an intake")
}

func TestTakenAdvancesByPatternNotFixedDelay(t *testing.T) {
	fx := newFixture(t)
	sc := fx.seedDaily(t)

	require.NoError(t, fx.eng.Taken(context.Background(), sc.ID))

	got, err := fx.st.GetSchedule(context.Background(), sc.ID)
	require.NoError(t, err)
	// Taken at 08:05 for a daily 08:00 schedule lands on tomorrow 08:00.
	assert.Equal(t, time.Date(2026, time.August, 29, 8, 0, 0, 0, time.UTC), got.NextTriggerAt)

	armedAt, ok := fx.alarms.at(sc.ID)
	require.True(t, ok)
	assert.Equal(t, got.NextTriggerAt, armedAt)

	require.Equal(t, 1, fx.st.intakeCount())
	ev := fx.st.intakes[0]
	assert.Equal(t, "Aspirin", ev.MedicationName)
	assert.Equal(t, 2, ev.DosageTaken)
	assert.Equal(t, testBase, ev.TakenAt)
}

func TestTakenTwiceRecordsOneIntake(t *testing.T) {
	fx := newFixture(t)
	sc := fx.seedDaily(t)

	require.NoError(t, fx.eng.Taken(context.Background(), sc.ID))
	require.NoError(t, fx.eng.Taken(context.Background(), sc.ID))

	assert.Equal(t, 1, fx.st.intakeCount())
}

func TestTakenAfterSnoozeIsVoid(t *testing.T) {
	fx := newFixture(t)
	sc := fx.seedDaily(t)

	require.NoError(t, fx.eng.Snooze(context.Background(), sc.ID))
	require.NoError(t, fx.eng.Taken(context.Background(), sc.ID))

	assert.Zero(t, fx.st.intakeCount())
	got, err := fx.st.GetSchedule(context.Background(), sc.ID)
	require.NoError(t, err)
	assert.Equal(t, testBase.Add(10*time.Minute), got.NextTriggerAt)
}

func TestActionsOnDeletedScheduleAreSwallowed(t *testing.T) {
	fx := newFixture(t)

	assert.NoError(t, fx.eng.Snooze(context.Background(), "gone"))
	assert.NoError(t, fx.eng.Taken(context.Background(), "gone"))
	assert.Zero(t, fx.st.intakeCount())
}

func TestTakenOnDeletedMedicationIsSwallowed(t *testing.T) {
	fx := newFixture(t)
	sc := fx.seedDaily(t)
	delete(fx.st.meds, "med-1")

	assert.NoError(t, fx.eng.Taken(context.Background(), sc.ID))
	assert.Zero(t, fx.st.intakeCount())
}

func TestStoreFailureOnSnoozeRearmsWithRetryDelay(t *testing.T) {
	fx := newFixture(t)
	sc := fx.seedDaily(t)
	fx.st.failUpdateTrigger = true

	require.NoError(t, fx.eng.Snooze(context.Background(), sc.ID))

	armedAt, ok := fx.alarms.at(sc.ID)
	require.True(t, ok, "schedule must never be left unarmed")
	assert.Equal(t, testBase.Add(retryDelay), armedAt)
}

func TestStoreFailureOnIntakeRearmsWithRetryDelay(t *testing.T) {
	fx := newFixture(t)
	sc := fx.seedDaily(t)
	fx.st.failAppendIntake = true

	require.NoError(t, fx.eng.Taken(context.Background(), sc.ID))

	armedAt, ok := fx.alarms.at(sc.ID)
	require.True(t, ok)
	assert.Equal(t, testBase.Add(retryDelay), armedAt)

	// The trigger was not advanced, so a later retry can still confirm it.
	got, err := fx.st.GetSchedule(context.Background(), sc.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.August, 28, 8, 0, 0, 0, time.UTC), got.NextTriggerAt)
}

func TestHandleFiredShowsNotificationWithBothActions(t *testing.T) {
	fx := newFixture(t)
	sc := fx.seedDaily(t)

	fx.eng.HandleFired(alarm.Fire{ScheduleID: sc.ID, MedicationID: "med-1", At: sc.NextTriggerAt})

	require.Equal(t, 1, fx.notifier.count())
	n := fx.notifier.shown[0]
	assert.Equal(t, sc.ID, n.ScheduleID)
	assert.Contains(t, n.Body, "Aspirin")
	assert.Equal(t, []ActionKind{ActionSnooze, ActionTaken}, n.Actions)
}

func TestDuplicateFireShowsOneNotification(t *testing.T) {
	fx := newFixture(t)
	sc := fx.seedDaily(t)

	f := alarm.Fire{ScheduleID: sc.ID, MedicationID: "med-1", At: sc.NextTriggerAt}
	fx.eng.HandleFired(f)
	fx.eng.HandleFired(f)

	assert.Equal(t, 1, fx.notifier.count())
}

func TestActionClearsPendingForNextFire(t *testing.T) {
	fx := newFixture(t)
	sc := fx.seedDaily(t)

	f := alarm.Fire{ScheduleID: sc.ID, MedicationID: "med-1", At: sc.NextTriggerAt}
	fx.eng.HandleFired(f)
	require.NoError(t, fx.eng.Taken(context.Background(), sc.ID))

	fx.clk.Set(testBase.Add(24 * time.Hour))
	fx.eng.HandleFired(alarm.Fire{ScheduleID: sc.ID, MedicationID: "med-1"})

	assert.Equal(t, 2, fx.notifier.count())
}

func TestFiredForDeletedScheduleIsSwallowed(t *testing.T) {
	fx := newFixture(t)
	fx.eng.HandleFired(alarm.Fire{ScheduleID: "gone", MedicationID: "med-1"})
	assert.Zero(t, fx.notifier.count())
}

func TestApplyDispatchesActions(t *testing.T) {
	fx := newFixture(t)
	sc := fx.seedDaily(t)

	require.NoError(t, fx.eng.Apply(context.Background(), Action{Kind: ActionTaken, ScheduleID: sc.ID}))
	assert.Equal(t, 1, fx.st.intakeCount())

	err := fx.eng.Apply(context.Background(), Action{Kind: "dismiss", ScheduleID: sc.ID})
	assert.Error(t, err)
}

func TestCreateScheduleComputesFirstTriggerAndArms(t *testing.T) {
	fx := newFixture(t)
	fx.st.meds["med-1"] = &schedule.Medication{ID: "med-1", Name: "Aspirin", DosagePerIntake: 1}

	sc := &schedule.Schedule{
		MedicationID: "med-1",
		CycleType:    schedule.CycleDaily,
		Times:        schedule.TimesOfDay{{Hour: 9, Minute: 0}},
		Enabled:      true,
	}
	require.NoError(t, fx.eng.CreateSchedule(context.Background(), sc))
	require.NotEmpty(t, sc.ID)

	want := time.Date(2026, time.August, 28, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, want, sc.NextTriggerAt)

	armedAt, ok := fx.alarms.at(sc.ID)
	require.True(t, ok)
	assert.Equal(t, want, armedAt)
}

func TestCreateScheduleRejectsInvalid(t *testing.T) {
	fx := newFixture(t)
	sc := &schedule.Schedule{MedicationID: "med-1", CycleType: schedule.CycleWeekly, Times: schedule.TimesOfDay{{Hour: 9, Minute: 0}}, Enabled: true}

	err := fx.eng.CreateSchedule(context.Background(), sc)
	var cerr *store.ConstraintError
	assert.ErrorAs(t, err, &cerr)
	assert.False(t, fx.alarms.Armed(sc.ID))
}

func TestDisableCancelsAlarmAndZeroesTrigger(t *testing.T) {
	fx := newFixture(t)
	sc := fx.seedDaily(t)
	fx.alarms.Arm(sc.ID, sc.MedicationID, sc.NextTriggerAt)

	sc.Enabled = false
	require.NoError(t, fx.eng.ReplaceSchedule(context.Background(), sc))

	assert.False(t, fx.alarms.Armed(sc.ID))
	got, err := fx.st.GetSchedule(context.Background(), sc.ID)
	require.NoError(t, err)
	assert.True(t, got.NextTriggerAt.IsZero())
}

func TestDeleteForMedicationCancelsAlarms(t *testing.T) {
	fx := newFixture(t)
	sc := fx.seedDaily(t)
	fx.alarms.Arm(sc.ID, sc.MedicationID, sc.NextTriggerAt)

	n, err := fx.eng.DeleteForMedication(context.Background(), "med-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, fx.alarms.Armed(sc.ID))
}

func TestRecoverComputesMissingTriggerAndArms(t *testing.T) {
	fx := newFixture(t)
	sc := fx.seedDaily(t)
	require.NoError(t, fx.st.UpdateNextTrigger(context.Background(), sc.ID, time.Time{}, testBase))

	require.NoError(t, fx.eng.Recover(context.Background()))

	got, err := fx.st.GetSchedule(context.Background(), sc.ID)
	require.NoError(t, err)
	want := time.Date(2026, time.August, 29, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, want, got.NextTriggerAt)

	armedAt, ok := fx.alarms.at(sc.ID)
	require.True(t, ok)
	assert.Equal(t, want, armedAt)
}

func TestRecoverArmsOverdueTriggerForImmediateDelivery(t *testing.T) {
	fx := newFixture(t)
	sc := fx.seedDaily(t) // trigger 08:00, now 08:05

	require.NoError(t, fx.eng.Recover(context.Background()))

	// The overdue instant is armed as-is so the fire happens immediately; the
	// trigger is not silently advanced past the missed dose.
	armedAt, ok := fx.alarms.at(sc.ID)
	require.True(t, ok)
	assert.Equal(t, sc.NextTriggerAt, armedAt)
}

func TestRecoverSkipsArmedAndPendingSchedules(t *testing.T) {
	fx := newFixture(t)
	sc := fx.seedDaily(t)

	// Already armed: recovery must not touch it.
	fx.alarms.Arm(sc.ID, sc.MedicationID, testBase.Add(time.Hour))
	require.NoError(t, fx.eng.Recover(context.Background()))
	armedAt, _ := fx.alarms.at(sc.ID)
	assert.Equal(t, testBase.Add(time.Hour), armedAt)

	// Pending a user action: recovery must not re-fire it.
	fx.alarms.Cancel(sc.ID)
	fx.eng.HandleFired(alarm.Fire{ScheduleID: sc.ID, MedicationID: "med-1"})
	require.NoError(t, fx.eng.Recover(context.Background()))
	assert.False(t, fx.alarms.Armed(sc.ID))
}
