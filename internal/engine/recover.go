package engine

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"medication-reminders/internal/schedule"
)

// Recover walks every enabled schedule and makes sure it is either armed or
// pending a user action. It runs at startup (platform timers do not survive a
// restart) and periodically from the Sweeper (a clock jump can strand a
// trigger in the past without the timer ever firing).
//
// A schedule whose trigger is already in the past is armed for immediate
// delivery rather than silently advanced: the missed reminder still reaches
// the user, and their taken/snooze computes the correct forward-looking next
// trigger from the actual now.
func (e *Engine) Recover(ctx context.Context) error {
	scs, err := e.schedules.ListEnabled(ctx)
	if err != nil {
		return err
	}
	for _, sc := range scs {
		e.recoverOne(ctx, sc)
	}
	return nil
}

func (e *Engine) recoverOne(ctx context.Context, sc *schedule.Schedule) {
	unlock := e.locks.lock(sc.ID)
	defer unlock()

	if e.isPending(sc.ID) || e.alarms.Armed(sc.ID) {
		return
	}

	now := e.clk.Now()
	if sc.NextTriggerAt.IsZero() {
		// Never computed (or zeroed by an interrupted disable); compute fresh.
		next, err := schedule.NextTrigger(sc, now)
		if err != nil {
			e.log.WithError(err).WithField("schedule_id", sc.ID).Error("recovery cannot compute trigger")
			return
		}
		if err := e.schedules.UpdateNextTrigger(ctx, sc.ID, next, now); err != nil {
			e.log.WithError(err).WithField("schedule_id", sc.ID).Error("recovery cannot persist trigger")
			e.alarms.Arm(sc.ID, sc.MedicationID, now.Add(retryDelay))
			return
		}
		sc.NextTriggerAt = next
	}
	// Past instants arm with zero delay and fire immediately.
	e.alarms.Arm(sc.ID, sc.MedicationID, sc.NextTriggerAt)
	e.log.WithFields(logrus.Fields{
		"schedule_id": sc.ID,
		"trigger_at":  sc.NextTriggerAt.Format(time.RFC3339),
	}).Debug("recovery armed schedule")
}

// Sweeper periodically re-runs recovery.
type Sweeper struct {
	cron *cron.Cron
	eng  *Engine
	log  *logrus.Logger
	spec string
}

func NewSweeper(eng *Engine, log *logrus.Logger, spec string) *Sweeper {
	return &Sweeper{
		cron: cron.New(),
		eng:  eng,
		log:  log,
		spec: spec,
	}
}

// Start registers the sweep job and starts the cron engine.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.eng.Recover(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.WithError(err).Error("recovery sweep failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.WithField("spec", s.spec).Info("recovery sweeper started")
	return nil
}

// Stop halts the cron engine and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("recovery sweeper stopped")
}
